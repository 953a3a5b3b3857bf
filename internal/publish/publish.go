/*
Copyright 2026 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package publish

import (
	"context"
	"errors"

	"github.com/go-git/go-billy/v5"

	"github.com/C3lEst1512/teamwater-data/internal/gitrepo"
)

// Publisher is the two-phase surface an update cycle drives. Prepare
// yields the filesystem to collect into, Publish ships what changed.
type Publisher interface {
	// Prepare brings the publisher's view of the data repository up to
	// date and returns the filesystem collection should write through.
	Prepare(ctx context.Context) (billy.Filesystem, error)

	// Publish commits and uploads every change made since Prepare. A
	// cycle that changed nothing returns Published false with no error.
	Publish(ctx context.Context, message string) (Result, error)
}

// Result describes the outcome of a Publish call.
type Result struct {
	// Published reports whether anything actually shipped.
	Published bool

	// Revision is the commit the remote branch points at afterwards.
	// For an unchanged cycle it is the revision Prepare saw.
	Revision string
}

// GitPublisher publishes through a local working copy managed by
// gitrepo. Not safe for concurrent use.
type GitPublisher struct {
	manager  *gitrepo.Manager
	checkout *gitrepo.Checkout
}

// NewGitPublisher wraps an already configured clone manager.
func NewGitPublisher(m *gitrepo.Manager) *GitPublisher {
	return &GitPublisher{manager: m}
}

// Prepare syncs the working copy against the remote branch and
// returns its worktree filesystem.
func (p *GitPublisher) Prepare(ctx context.Context) (billy.Filesystem, error) {
	co, err := p.manager.Sync(ctx)
	if err != nil {
		return nil, err
	}
	p.checkout = co
	return co.Filesystem(), nil
}

// Publish stages everything in the working copy, commits it with the
// given message and pushes the branch.
func (p *GitPublisher) Publish(ctx context.Context, message string) (Result, error) {
	if p.checkout == nil {
		return Result{}, errors.New("publish called before prepare")
	}
	sha, err := p.checkout.CommitAndPush(ctx, message)
	switch {
	case errors.Is(err, gitrepo.ErrNoChanges):
		return Result{Revision: p.checkout.Head()}, nil
	case err != nil:
		return Result{}, err
	}
	return Result{Published: true, Revision: sha}, nil
}
