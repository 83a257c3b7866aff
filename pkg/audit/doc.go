// Package audit records membership and access events. Services call Record
// after the fact; a failed audit write is logged but never fails the
// operation that triggered it. Events go to PostgreSQL in production, to a
// JSON-lines file in development, or to both through MultiRecorder.
package audit
