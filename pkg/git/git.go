// Package git queries the repository the build runs in.
package git

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rotisserie/eris"
)

// DefaultVersion is used if HEAD carries no version tag
const DefaultVersion = "0.0.0"

// Repository describes the checked out revision.
type Repository struct {
	Dir    string
	Commit string
	Branch string
	// Tags pointing at HEAD in the order git reports them
	Tags []string
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return "", eris.Wrapf(err, "git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(string(output)), nil
}

// Query reads commit, branch and tags of HEAD from the repository at dir.
// If dir is empty, uses the current working directory.
func Query(ctx context.Context, dir string) (*Repository, error) {
	commit, err := run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}

	// fails on a detached HEAD; an empty branch is fine in that case
	branch, err := run(ctx, dir, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		branch = ""
	}

	tagList, err := run(ctx, dir, "tag", "--points-at", "HEAD")
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, line := range strings.Split(tagList, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tags = append(tags, line)
		}
	}

	return &Repository{
		Dir:    dir,
		Commit: commit,
		Branch: branch,
		Tags:   tags,
	}, nil
}

// Version returns the first tag at HEAD that is a valid semantic version, or DefaultVersion
// if there is none. Tags that do not parse are skipped. The result is normalized, so a
// leading "v" is dropped and missing parts are filled in ("v1.2" becomes "1.2.0").
func (r *Repository) Version() string {
	if r == nil {
		return DefaultVersion
	}

	for _, tag := range r.Tags {
		version, err := semver.NewVersion(tag)
		if err == nil {
			return version.String()
		}
	}

	return DefaultVersion
}

// IsOnMainBranch reports whether HEAD is the main branch
func (r *Repository) IsOnMainBranch() bool {
	return r != nil && r.Branch == "main"
}

// IsOnMainOrMasterBranch reports whether HEAD is either main or master
func (r *Repository) IsOnMainOrMasterBranch() bool {
	return r != nil && (r.Branch == "main" || r.Branch == "master")
}
