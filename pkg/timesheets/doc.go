// Package timesheets implements time logging against projects and tasks.
// Entries belong to the user who logged them; contributors log and edit
// their own entries, managers may edit anyone's.
package timesheets
