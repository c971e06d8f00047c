package domain

// User is the identity behind the configured API key.
type User struct {
	ID                 string
	Name               string
	Email              string
	DefaultWorkspaceID string
}

// Workspace is a remote workspace the user belongs to.
type Workspace struct {
	ID   string
	Name string
}

// Project represents a project within a workspace.
type Project struct {
	ID          string
	WorkspaceID string
	Name        string
	ClientName  string
	Archived    bool
}

// Task belongs to a project.
type Task struct {
	ID        string
	ProjectID string
	Name      string
	Status    string
}

// Tag is a workspace tag.
type Tag struct {
	ID          string
	WorkspaceID string
	Name        string
}

// WorkspaceSettings holds the workspace policy relevant to starting a timer.
// The zero value is the permissive default: nothing is mandatory.
type WorkspaceSettings struct {
	ProjectRequired bool
	TaskRequired    bool
}
