// Package tasks implements task management within projects. Every read is
// scoped through the project ACL's accessible-project set and every mutation
// goes through a role check; nothing in this package reads tasks by foreign
// key without confirming membership first.
package tasks
