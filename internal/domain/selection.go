package domain

import (
	"slices"
	"strings"
)

// RepoSelection is the remembered workspace/project/task/tags choice for a repository.
type RepoSelection struct {
	WorkspaceID string   `json:"workspaceId,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	TaskID      string   `json:"taskId,omitempty"`
	TagIDs      []string `json:"tagIds,omitempty"`
}

// Empty reports whether nothing has been selected.
func (s RepoSelection) Empty() bool {
	return s.WorkspaceID == "" && s.ProjectID == "" && s.TaskID == "" && len(s.TagIDs) == 0
}

// Normalized trims ids and removes empty and duplicate tags, keeping first-seen order.
func (s RepoSelection) Normalized() RepoSelection {
	out := RepoSelection{
		WorkspaceID: strings.TrimSpace(s.WorkspaceID),
		ProjectID:   strings.TrimSpace(s.ProjectID),
		TaskID:      strings.TrimSpace(s.TaskID),
	}
	for _, t := range s.TagIDs {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out.TagIDs, t) {
			continue
		}
		out.TagIDs = append(out.TagIDs, t)
	}
	return out
}

// NormalizeRepo turns a remote URL or "owner/name" string into a lower-case
// "owner/name" key. Unrecognised input is lower-cased and trimmed.
func NormalizeRepo(repo string) string {
	r := strings.TrimSpace(repo)
	if r == "" {
		return ""
	}
	r = strings.TrimSuffix(r, "/")
	r = strings.TrimSuffix(r, ".git")

	switch {
	case strings.Contains(r, "://"):
		// https://host/owner/name, ssh://git@host/owner/name
		r = r[strings.Index(r, "://")+3:]
		if i := strings.IndexByte(r, '/'); i >= 0 {
			r = r[i+1:]
		}
	case strings.HasPrefix(r, "git@") || (strings.Contains(r, "@") && strings.Contains(r, ":")):
		// git@host:owner/name
		if i := strings.IndexByte(r, ':'); i >= 0 {
			r = r[i+1:]
		}
	}
	return strings.ToLower(strings.Trim(r, "/"))
}
