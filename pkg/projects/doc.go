// Package projects implements project lifecycle and project-scoped
// membership. Project roles are independent of workspace roles; a workspace
// owner sees nothing inside a project they were not added to. GetUserProjects
// is the authoritative visibility source for every project-scoped read path.
package projects
