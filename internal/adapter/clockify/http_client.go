package clockify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"timersync/internal/domain"
	"timersync/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.clockify.me/api/v1"

	// Clockify allows 50 requests/second per key; stay far below it.
	defaultRateLimit = rate.Limit(5)
	defaultBurst     = 5

	pageSize = 50
	maxPages = 20
)

// Client implements ports.TimerAPI against the Clockify REST API v1.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit sets the sustained request rate and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewClient(baseURL, apiKey string, log *slog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(defaultRateLimit, defaultBurst),
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentUser returns the identity behind the API key. GET /user
func (c *Client) CurrentUser(ctx context.Context) (domain.User, error) {
	var raw rawUser
	if err := c.do(ctx, "get user", http.MethodGet, "/user", nil, nil, &raw); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:                 raw.ID,
		Name:               raw.Name,
		Email:              raw.Email,
		DefaultWorkspaceID: firstNonEmpty(raw.ActiveWorkspace, raw.DefaultWorkspace),
	}, nil
}

// Workspaces lists the workspaces of the user. GET /workspaces
func (c *Client) Workspaces(ctx context.Context) ([]domain.Workspace, error) {
	var raw []rawWorkspace
	if err := c.do(ctx, "list workspaces", http.MethodGet, "/workspaces", nil, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Workspace, 0, len(raw))
	for _, w := range raw {
		out = append(out, domain.Workspace{ID: w.ID, Name: w.Name})
	}
	return out, nil
}

// WorkspaceSettings fetches the mandatory-field policy. GET /workspaces/{ws}/settings
func (c *Client) WorkspaceSettings(ctx context.Context, workspaceID string) (domain.WorkspaceSettings, error) {
	var raw rawSettings
	path := "/workspaces/" + workspaceID + "/settings"
	if err := c.do(ctx, "get workspace settings", http.MethodGet, path, nil, nil, &raw); err != nil {
		return domain.WorkspaceSettings{}, err
	}
	return domain.WorkspaceSettings{
		ProjectRequired: raw.ProjectRequired || raw.ForceProjects,
		TaskRequired:    raw.TaskRequired || raw.ForceTasks,
	}, nil
}

// Projects lists the active projects of a workspace.
func (c *Client) Projects(ctx context.Context, workspaceID string) ([]domain.Project, error) {
	q := url.Values{}
	q.Set("archived", "false")
	q.Set("page-size", "500")
	var raw []rawProject
	path := "/workspaces/" + workspaceID + "/projects"
	if err := c.do(ctx, "list projects", http.MethodGet, path, q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(raw))
	for _, p := range raw {
		out = append(out, domain.Project{
			ID:          p.ID,
			WorkspaceID: firstNonEmpty(p.WorkspaceID, workspaceID),
			Name:        p.Name,
			ClientName:  p.ClientName,
			Archived:    p.Archived,
		})
	}
	return out, nil
}

// Tasks lists the tasks of a project.
func (c *Client) Tasks(ctx context.Context, workspaceID, projectID string) ([]domain.Task, error) {
	q := url.Values{}
	q.Set("page-size", "500")
	var raw []rawTask
	path := "/workspaces/" + workspaceID + "/projects/" + projectID + "/tasks"
	if err := c.do(ctx, "list tasks", http.MethodGet, path, q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(raw))
	for _, t := range raw {
		out = append(out, domain.Task{
			ID:        t.ID,
			ProjectID: firstNonEmpty(t.ProjectID, projectID),
			Name:      t.Name,
			Status:    t.Status,
		})
	}
	return out, nil
}

// Tags lists the tags of a workspace.
func (c *Client) Tags(ctx context.Context, workspaceID string) ([]domain.Tag, error) {
	q := url.Values{}
	q.Set("page-size", "500")
	var raw []rawTag
	path := "/workspaces/" + workspaceID + "/tags"
	if err := c.do(ctx, "list tags", http.MethodGet, path, q, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Tag, 0, len(raw))
	for _, t := range raw {
		out = append(out, domain.Tag{ID: t.ID, WorkspaceID: firstNonEmpty(t.WorkspaceID, workspaceID), Name: t.Name})
	}
	return out, nil
}

// RunningEntry polls for the user's in-progress entry.
// GET /workspaces/{ws}/user/{userId}/time-entries?in-progress=true
func (c *Client) RunningEntry(ctx context.Context, workspaceID, userID string) (*domain.TimeEntry, error) {
	q := url.Values{}
	q.Set("in-progress", "true")
	var raw []rawTimeEntry
	if err := c.do(ctx, "get running entry", http.MethodGet, userEntriesPath(workspaceID, userID), q, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	e := raw[0].toDomain(workspaceID)
	return &e, nil
}

// ListTimeEntries fetches the user's entries started in [from, to], following pages.
func (c *Client) ListTimeEntries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]domain.TimeEntry, error) {
	var out []domain.TimeEntry
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("start", formatTime(from))
		q.Set("end", formatTime(to))
		q.Set("page", strconv.Itoa(page))
		q.Set("page-size", strconv.Itoa(pageSize))
		var raw []rawTimeEntry
		if err := c.do(ctx, "list time entries", http.MethodGet, userEntriesPath(workspaceID, userID), q, nil, &raw); err != nil {
			return nil, err
		}
		for _, r := range raw {
			out = append(out, r.toDomain(workspaceID))
		}
		if len(raw) < pageSize {
			break
		}
	}
	return out, nil
}

// StartEntry creates a running entry. POST /workspaces/{ws}/time-entries
func (c *Client) StartEntry(ctx context.Context, workspaceID string, entry domain.NewEntry) (domain.TimeEntry, error) {
	body := rawStartBody{
		Start:       formatTime(entry.Start),
		Description: entry.Description,
		ProjectID:   entry.ProjectID,
		TaskID:      entry.TaskID,
		TagIDs:      entry.TagIDs,
	}
	var raw rawTimeEntry
	path := "/workspaces/" + workspaceID + "/time-entries"
	if err := c.do(ctx, "start entry", http.MethodPost, path, nil, body, &raw); err != nil {
		return domain.TimeEntry{}, err
	}
	return raw.toDomain(workspaceID), nil
}

// StopEntry ends the user's running entry.
// PATCH /workspaces/{ws}/user/{userId}/time-entries
func (c *Client) StopEntry(ctx context.Context, workspaceID, userID string, end time.Time) (domain.TimeEntry, error) {
	var raw rawTimeEntry
	body := rawStopBody{End: formatTime(end)}
	if err := c.do(ctx, "stop entry", http.MethodPatch, userEntriesPath(workspaceID, userID), nil, body, &raw); err != nil {
		return domain.TimeEntry{}, err
	}
	return raw.toDomain(workspaceID), nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.apiKey == "" {
		return &domain.APIError{Op: op, Err: domain.ErrAuth, Body: "missing api key"}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.APIError{Op: op, Err: domain.ErrNetwork, Body: err.Error()}
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path = u.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RemoteLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(op, "error").Inc()
		return &domain.APIError{Op: op, Err: domain.ErrNetwork, Body: err.Error()}
	}
	defer resp.Body.Close()
	metrics.RemoteRequests.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	c.log.Debug("remote request",
		slog.String("op", op),
		slog.String("method", method),
		slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.APIError{Op: op, Status: resp.StatusCode, Body: string(b), Err: domain.ClassifyStatus(resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.APIError{Op: op, Err: domain.ErrNetwork, Body: err.Error()}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &domain.APIError{Op: op, Status: resp.StatusCode, Err: domain.ErrNetwork, Body: "decode response: " + err.Error()}
	}
	return nil
}

func userEntriesPath(workspaceID, userID string) string {
	return "/workspaces/" + workspaceID + "/user/" + userID + "/time-entries"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
