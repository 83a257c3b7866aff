// Package attachments stores file attachments for projects: metadata rows
// in PostgreSQL, blob content in S3-compatible object storage. Visibility
// follows the owning project's membership like every other project-scoped
// resource.
package attachments
