// Package comments implements threaded comments on tasks. Replies reference
// a parent comment in the same thread; deletion soft-deletes so replies keep
// a parent to hang from.
package comments
