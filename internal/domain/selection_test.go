package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRepo(t *testing.T) {
	tests := map[string]string{
		"":                                     "",
		"Owner/Repo":                           "owner/repo",
		"https://github.com/Owner/Repo.git":    "owner/repo",
		"https://github.com/owner/repo/":       "owner/repo",
		"git@github.com:Owner/Repo.git":        "owner/repo",
		"ssh://git@github.com/owner/repo.git":  "owner/repo",
		"https://gitlab.com/group/sub/project": "group/sub/project",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeRepo(in), "input %q", in)
	}
}

func TestRepoSelectionNormalized(t *testing.T) {
	s := RepoSelection{ProjectID: " p1 ", TagIDs: []string{"a", "", "b", "a", " b "}}
	got := s.Normalized()
	assert.Equal(t, "p1", got.ProjectID)
	assert.Equal(t, []string{"a", "b"}, got.TagIDs)
	assert.False(t, got.Empty())
	assert.True(t, RepoSelection{}.Empty())
}

func TestClassifyStatus(t *testing.T) {
	assert.ErrorIs(t, ClassifyStatus(401), ErrAuth)
	assert.ErrorIs(t, ClassifyStatus(403), ErrAuth)
	assert.ErrorIs(t, ClassifyStatus(404), ErrNotFound)
	assert.ErrorIs(t, ClassifyStatus(400), ErrValidation)
	assert.ErrorIs(t, ClassifyStatus(500), ErrNetwork)
	assert.ErrorIs(t, ClassifyStatus(429), ErrNetwork)
}

func TestAPIErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("stop: %w", &APIError{Op: "stop entry", Status: 404, Err: ErrNotFound})
	assert.True(t, errors.Is(err, ErrNotFound))
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 404, apiErr.Status)
}
