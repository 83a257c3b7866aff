// Package gate is the single entry point for authorization. HTTP handlers
// check workspace and project permissions through it, and the project-scoped
// services consume its ProjectACL face, so every check shares one counter
// and one denial audit trail. The gate holds no cache, so a revoked
// membership is enforced on the very next request.
package gate
