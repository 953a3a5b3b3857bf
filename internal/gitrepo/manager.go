/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"

	"github.com/C3lEst1512/teamwater-data/internal/retry"
)

const remoteName = "origin"

// Manager owns the persistent working copy of the data repository.
// It is not safe for concurrent use; the update loop runs one cycle
// at a time.
type Manager struct {
	remoteURL string
	branch    string
	path      string

	identity    string
	email       string
	tokenSource oauth2.TokenSource
	signer      git.Signer
	retryCfg    retry.Config
}

// Checkout is a working copy aligned to the remote branch head,
// ready for collection writes and a publish.
type Checkout struct {
	manager  *Manager
	repo     *git.Repository
	worktree *git.Worktree
	head     plumbing.Hash
}

// Option configures the Manager.
type Option func(*Manager)

// WithTokenSource supplies credentials for HTTPS remotes. Without one
// the Manager only works against remotes that need no authentication.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(m *Manager) {
		m.tokenSource = ts
	}
}

// WithIdentity sets the commit author. When email is empty it is
// derived from the name.
func WithIdentity(name, email string) Option {
	return func(m *Manager) {
		m.identity = name
		m.email = email
	}
}

// WithSigner enables commit signing.
func WithSigner(s git.Signer) Option {
	return func(m *Manager) {
		m.signer = s
	}
}

// WithRetryConfig overrides the push retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(m *Manager) {
		m.retryCfg = cfg
	}
}

// New constructs a Manager for the given remote branch, keeping its
// working copy at path.
func New(remoteURL, branch, path string, opts ...Option) (*Manager, error) {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return nil, errors.New("remote URL cannot be empty")
	}
	if strings.TrimSpace(branch) == "" {
		return nil, errors.New("branch cannot be empty")
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("working copy path cannot be empty")
	}

	m := &Manager{
		remoteURL: remoteURL,
		branch:    branch,
		path:      path,
		identity:  "teamwater-data-bot",
		retryCfg:  retry.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.email == "" {
		m.email = m.identity
		if !strings.Contains(m.email, "@") {
			m.email = fmt.Sprintf("%s@users.noreply.github.com", m.identity)
		}
	}
	if err := m.retryCfg.Validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}
	return m, nil
}

// Sync aligns the working copy with the remote branch head and
// returns a Checkout over it. A missing copy is cloned; an existing
// one is fetched, hard-reset, and cleaned. Local preparation failures
// trigger one delete-and-re-clone before giving up.
func (m *Manager) Sync(ctx context.Context) (*Checkout, error) {
	log := clog.FromContext(ctx)

	co, err := m.syncExisting(ctx)
	switch {
	case err == nil:
		return co, nil
	case errors.Is(err, git.ErrRepositoryNotExists):
		// First run, nothing on disk yet.
	case errors.Is(err, ErrAuthRequired),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		log.Warnf("Working copy at %s unusable, re-cloning: %v", m.path, err)
	}

	if err := os.RemoveAll(m.path); err != nil {
		return nil, fmt.Errorf("removing stale working copy: %w", err)
	}
	return m.clone(ctx)
}

// syncExisting opens the working copy on disk and forces it to the
// remote branch head.
func (m *Manager) syncExisting(ctx context.Context) (*Checkout, error) {
	repo, err := git.PlainOpen(m.path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, err
		}
		return nil, fmt.Errorf("opening working copy: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	// Discard whatever the previous cycle left behind before touching
	// the remote.
	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("resetting worktree: %w", err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return nil, fmt.Errorf("cleaning worktree: %w", err)
	}

	auth, err := m.authForRemote()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	clog.FromContext(ctx).Debugf("Fetching %s from %s", m.branch, m.remoteURL)
	fetchOpts := &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", m.branch, remoteName, m.branch)),
		},
		Auth: auth,
	}
	if err := repo.FetchContext(ctx, fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, fmt.Errorf("fetching %s: %w", m.branch, mapTransportErr(err))
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, m.branch), true)
	if err != nil {
		return nil, fmt.Errorf("resolving remote head of %s: %w", m.branch, err)
	}
	head := remoteRef.Hash()

	branchRef := plumbing.NewBranchReferenceName(m.branch)
	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("checking out %s: %w", m.branch, err)
		}
		// The local branch vanished; recreate it at the remote head.
		if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Hash: head, Create: true, Force: true}); err != nil {
			return nil, fmt.Errorf("recreating branch %s: %w", m.branch, err)
		}
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: head, Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("resetting to remote head %s: %w", head, err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return nil, fmt.Errorf("cleaning worktree: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}
	if !status.IsClean() {
		return nil, errors.New("worktree is not clean after sync")
	}

	clog.FromContext(ctx).Debugf("Working copy at %s synced to %s", m.path, head)
	return &Checkout{manager: m, repo: repo, worktree: worktree, head: head}, nil
}

// clone creates the working copy from scratch.
func (m *Manager) clone(ctx context.Context) (*Checkout, error) {
	auth, err := m.authForRemote()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	clog.FromContext(ctx).Infof("Cloning %s into %s", m.remoteURL, m.path)
	repo, err := git.PlainCloneContext(ctx, m.path, false, &git.CloneOptions{
		URL:           m.remoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(m.branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		os.RemoveAll(m.path)
		return nil, fmt.Errorf("cloning repository: %w", mapTransportErr(err))
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	headRef, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("getting HEAD: %w", err)
	}

	return &Checkout{manager: m, repo: repo, worktree: worktree, head: headRef.Hash()}, nil
}

func (m *Manager) authForRemote() (*githttp.BasicAuth, error) {
	if m.tokenSource == nil {
		return nil, nil
	}
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}

// Filesystem returns the worktree filesystem the ledger writes
// through. Paths are confined to the working copy root.
func (co *Checkout) Filesystem() billy.Filesystem {
	return co.worktree.Filesystem
}

// Head returns the commit the checkout was synced to.
func (co *Checkout) Head() string {
	return co.head.String()
}

// Path returns the absolute path of the working copy.
func (co *Checkout) Path() string {
	return co.manager.path
}

// CommitAndPush stages every change in the working tree, commits it
// with the manager's identity, and pushes the branch. Returns
// ErrNoChanges when the tree is clean. Transient push failures are
// retried with backoff; a non-fast-forward rejection surfaces as
// ErrNotFastForward for the caller to re-sync and rebuild.
func (co *Checkout) CommitAndPush(ctx context.Context, message string) (string, error) {
	log := clog.FromContext(ctx)
	m := co.manager

	if strings.TrimSpace(message) == "" {
		return "", errors.New("commit message cannot be empty")
	}

	status, err := co.worktree.Status()
	if err != nil {
		return "", fmt.Errorf("getting worktree status: %w", err)
	}
	if status.IsClean() {
		return "", ErrNoChanges
	}

	if err := co.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}

	commit, err := co.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  m.identity,
			Email: m.email,
			When:  time.Now(),
		},
		Signer: m.signer,
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	log.With("commit", commit.String()).With("files", len(status)).Infof("Committed ledger changes")

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", m.branch, m.branch))
	_, err = retry.Do(ctx, m.retryCfg, "push", isRetryablePush, func() (struct{}, error) {
		return struct{}{}, co.push(ctx, refSpec)
	})
	if err != nil {
		return "", err
	}

	co.head = commit
	return commit.String(), nil
}

func (co *Checkout) push(ctx context.Context, refSpec gitconfig.RefSpec) error {
	m := co.manager
	auth, err := m.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	clog.FromContext(ctx).Infof("Pushing %s to %s", refSpec, m.remoteURL)
	if err := co.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			clog.FromContext(ctx).Infof("Remote already up to date")
			return nil
		}
		return fmt.Errorf("pushing: %w", mapTransportErr(err))
	}
	return nil
}

// isRetryablePush allows retry for transient transport failures only.
// Auth and non-fast-forward rejections need different handling, and
// cancellation ends the attempt.
func isRetryablePush(err error) bool {
	switch {
	case errors.Is(err, ErrAuthRequired),
		errors.Is(err, ErrNotFastForward),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
