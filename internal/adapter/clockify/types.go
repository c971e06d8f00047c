package clockify

import (
	"time"

	"timersync/internal/domain"
)

// rawTimeEntry mirrors the time entry JSON of Clockify v1.
type rawTimeEntry struct {
	ID           string   `json:"id"`
	Description  string   `json:"description"`
	UserID       string   `json:"userId"`
	WorkspaceID  string   `json:"workspaceId"`
	ProjectID    string   `json:"projectId"`
	TaskID       string   `json:"taskId"`
	TagIDs       []string `json:"tagIds"`
	TimeInterval struct {
		Start time.Time  `json:"start"`
		End   *time.Time `json:"end"`
	} `json:"timeInterval"`
}

func (r rawTimeEntry) toDomain(workspaceID string) domain.TimeEntry {
	var end *time.Time
	if r.TimeInterval.End != nil {
		e := *r.TimeInterval.End
		end = &e
	}
	return domain.TimeEntry{
		ID:          r.ID,
		WorkspaceID: firstNonEmpty(r.WorkspaceID, workspaceID),
		UserID:      r.UserID,
		Description: r.Description,
		ProjectID:   r.ProjectID,
		TaskID:      r.TaskID,
		TagIDs:      r.TagIDs,
		Start:       r.TimeInterval.Start,
		End:         end,
	}
}

type rawStartBody struct {
	Start       string   `json:"start"`
	Description string   `json:"description"`
	ProjectID   string   `json:"projectId,omitempty"`
	TaskID      string   `json:"taskId,omitempty"`
	TagIDs      []string `json:"tagIds,omitempty"`
}

type rawStopBody struct {
	End string `json:"end"`
}

type rawUser struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	ActiveWorkspace  string `json:"activeWorkspace"`
	DefaultWorkspace string `json:"defaultWorkspace"`
}

type rawWorkspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// rawSettings accepts both the settings endpoint shape and the
// workspaceSettings block of the workspace resource.
type rawSettings struct {
	ProjectRequired bool `json:"projectRequired"`
	TaskRequired    bool `json:"taskRequired"`
	ForceProjects   bool `json:"forceProjects"`
	ForceTasks      bool `json:"forceTasks"`
}

type rawProject struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	ClientName  string `json:"clientName"`
	Archived    bool   `json:"archived"`
}

type rawTask struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

type rawTag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
}
