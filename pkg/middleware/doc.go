// Package middleware provides HTTP middleware for authentication, request
// identification, and rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: Bearer token authentication
//
//	authMW := middleware.NewAuthMiddleware(tokenManager, false)
//	router.Use(authMW.Handler)
//	// Extracts the Bearer token, validates it, and attaches the
//	// authenticated user to the request context.
//
// RequestIDMiddleware: request correlation
//
//	router.Use(middleware.RequestIDMiddleware)
//	// Honors an incoming X-Request-ID or assigns a fresh UUID.
//
// RateLimitMiddleware: in-memory rate limiting for single-instance deployments.
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting shared across
// instances. Fails open when Redis is unreachable.
//
// Role checks live in pkg/gate; this package only establishes identity.
package middleware
