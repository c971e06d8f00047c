package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"timersync/internal/domain"
)

// StartRequest describes a timer to start. Empty fields are filled from
// remembered and configured selections.
type StartRequest struct {
	Description string
	WorkspaceID string
	ProjectID   string
	TaskID      string
	TagIDs      []string

	// Repo and Branch describe the working copy the timer is for.
	Repo   string
	Branch string
	// Labels are issue or pull request labels mapped to tags.
	Labels []string
}

// SelectionDefaults is the configured fallback for new timers.
type SelectionDefaults struct {
	WorkspaceID  string
	ProjectID    string
	TaskID       string
	TagIDs       []string
	RepoMappings map[string]domain.RepoSelection
	LabelTags    map[string]string
}

// overlay returns base with every non-empty field of top applied.
func overlay(base, top domain.RepoSelection) domain.RepoSelection {
	if top.WorkspaceID != "" {
		base.WorkspaceID = top.WorkspaceID
	}
	if top.ProjectID != "" {
		base.ProjectID = top.ProjectID
	}
	if top.TaskID != "" {
		base.TaskID = top.TaskID
	}
	if len(top.TagIDs) > 0 {
		base.TagIDs = top.TagIDs
	}
	return base
}

// resolveSelection layers, lowest first: configured defaults, the configured
// repo mapping, the remembered selection when quick start is on, and finally
// the explicit request. Label tags are appended last.
func (e *SyncEngine) resolveSelection(ctx context.Context, req StartRequest) (domain.RepoSelection, error) {
	d := e.defaults
	sel := domain.RepoSelection{
		WorkspaceID: d.WorkspaceID,
		ProjectID:   d.ProjectID,
		TaskID:      d.TaskID,
		TagIDs:      d.TagIDs,
	}

	repo := domain.NormalizeRepo(req.Repo)
	if repo != "" {
		for k, m := range d.RepoMappings {
			if domain.NormalizeRepo(k) == repo {
				sel = overlay(sel, m)
				break
			}
		}
		quick, err := e.store.QuickStart(ctx)
		if err != nil {
			return domain.RepoSelection{}, err
		}
		if quick {
			remembered, ok, err := e.store.RepoSelection(ctx, repo)
			if err != nil {
				return domain.RepoSelection{}, err
			}
			if ok {
				sel = overlay(sel, remembered)
			}
		}
	}

	sel = overlay(sel, domain.RepoSelection{
		WorkspaceID: req.WorkspaceID,
		ProjectID:   req.ProjectID,
		TaskID:      req.TaskID,
		TagIDs:      req.TagIDs,
	})
	tags := slices.Clone(sel.TagIDs)
	for _, label := range req.Labels {
		if tag, ok := d.LabelTags[strings.ToLower(strings.TrimSpace(label))]; ok {
			tags = append(tags, tag)
		}
	}
	sel.TagIDs = tags
	sel = sel.Normalized()

	if sel.WorkspaceID == "" {
		ws, err := e.remote.DefaultWorkspace(ctx)
		if err != nil {
			return domain.RepoSelection{}, fmt.Errorf("resolve workspace: %w", err)
		}
		sel.WorkspaceID = ws
	}
	if sel.TaskID != "" && sel.ProjectID == "" {
		return domain.RepoSelection{}, fmt.Errorf("task %s needs a project: %w", sel.TaskID, domain.ErrValidation)
	}

	settings := e.remote.Settings(ctx, sel.WorkspaceID)
	if settings.ProjectRequired && sel.ProjectID == "" {
		return domain.RepoSelection{}, fmt.Errorf("workspace %s requires a project: %w", sel.WorkspaceID, domain.ErrValidation)
	}
	if settings.TaskRequired && sel.TaskID == "" {
		return domain.RepoSelection{}, fmt.Errorf("workspace %s requires a task: %w", sel.WorkspaceID, domain.ErrValidation)
	}
	return sel, nil
}

// describe returns the entry description, defaulting to "<branch> (<repo>)".
func describe(req StartRequest) string {
	if d := strings.TrimSpace(req.Description); d != "" {
		return d
	}
	repo := domain.NormalizeRepo(req.Repo)
	switch {
	case req.Branch != "" && repo != "":
		return fmt.Sprintf("%s (%s)", req.Branch, repo)
	case repo != "":
		return repo
	default:
		return req.Branch
	}
}

func (e *SyncEngine) rememberSelection(ctx context.Context, repo string, sel domain.RepoSelection) {
	if domain.NormalizeRepo(repo) == "" {
		return
	}
	if err := e.store.SaveRepoSelection(ctx, repo, sel); err != nil {
		e.log.Warn("could not remember selection",
			slog.String("repo", repo),
			slog.String("error", err.Error()),
		)
	}
}
