// Package gitrepo reads the repository and branch of a working copy.
package gitrepo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"timersync/internal/domain"
)

// ErrNotRepository is returned when path is not inside a git working copy.
var ErrNotRepository = errors.New("not a git repository")

// Context identifies the work a timer is for.
type Context struct {
	// Repo is the normalized "owner/name" key of the preferred remote.
	Repo   string
	Branch string
	Remote string
}

// Detect opens the repository containing path, walking up to find .git.
// The "origin" remote is preferred; otherwise the first remote is used.
// A repository without remotes is keyed by nothing and only the branch is set.
func Detect(path string) (Context, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Context{}, ErrNotRepository
	}
	if err != nil {
		return Context{}, fmt.Errorf("open repository: %w", err)
	}

	var ctx Context
	head, err := repo.Head()
	switch {
	case err == nil && head.Name().IsBranch():
		ctx.Branch = head.Name().Short()
	case err == nil:
		ctx.Branch = head.Hash().String()[:7]
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Unborn branch: HEAD points at a ref with no commits yet.
		if ref, rerr := repo.Storer.Reference(plumbing.HEAD); rerr == nil && ref.Type() == plumbing.SymbolicReference {
			ctx.Branch = ref.Target().Short()
		}
	default:
		return Context{}, fmt.Errorf("read HEAD: %w", err)
	}

	remotes, err := repo.Remotes()
	if err != nil {
		return Context{}, fmt.Errorf("list remotes: %w", err)
	}
	var url string
	for _, r := range remotes {
		cfg := r.Config()
		if len(cfg.URLs) == 0 {
			continue
		}
		if cfg.Name == git.DefaultRemoteName {
			url = cfg.URLs[0]
			break
		}
		if url == "" {
			url = cfg.URLs[0]
		}
	}
	ctx.Remote = url
	ctx.Repo = domain.NormalizeRepo(url)
	if strings.Count(ctx.Repo, "/") < 1 {
		ctx.Repo = ""
	}
	return ctx, nil
}
