/*
Copyright 2026 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"

	"github.com/C3lEst1512/teamwater-data/internal/gitrepo"
	"github.com/C3lEst1512/teamwater-data/internal/ledger"
)

const (
	defaultCommitterName  = "teamwater-data-bot"
	defaultCommitterEmail = "teamwater-data-bot@users.noreply.github.com"
)

// NewGitHubClient builds an API client from a token source.
func NewGitHubClient(ctx context.Context, ts oauth2.TokenSource) *github.Client {
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// GitHubPublisher publishes ledger files through the GitHub Contents
// API instead of a working copy. Prepare stages the tracked files in
// an in-memory filesystem, Publish uploads whatever collection
// changed, one commit per file. Not safe for concurrent use.
type GitHubPublisher struct {
	client         *github.Client
	owner          string
	repo           string
	branch         string
	committerName  string
	committerEmail string
	tracked        []string

	fs   billy.Filesystem
	base map[string]remoteFile
	head string
}

type remoteFile struct {
	sha  string
	data []byte
}

// GitHubOption configures a GitHubPublisher.
type GitHubOption func(*GitHubPublisher)

// WithCommitter sets the commit author recorded on uploads.
func WithCommitter(name, email string) GitHubOption {
	return func(p *GitHubPublisher) {
		if name != "" {
			p.committerName = name
		}
		if email != "" {
			p.committerEmail = email
		}
	}
}

// WithTrackedFiles overrides which files Prepare seeds from the
// repository. Defaults to the two ledger files.
func WithTrackedFiles(files ...string) GitHubOption {
	return func(p *GitHubPublisher) {
		p.tracked = files
	}
}

// NewGitHubPublisher targets one branch of one repository.
func NewGitHubPublisher(client *github.Client, owner, repo, branch string, opts ...GitHubOption) (*GitHubPublisher, error) {
	if client == nil {
		return nil, errors.New("github client is required")
	}
	if owner == "" || repo == "" {
		return nil, errors.New("repository owner and name are required")
	}
	if branch == "" {
		return nil, errors.New("branch is required")
	}
	p := &GitHubPublisher{
		client:         client,
		owner:          owner,
		repo:           repo,
		branch:         branch,
		committerName:  defaultCommitterName,
		committerEmail: defaultCommitterEmail,
		tracked:        []string{ledger.DonationsFile, ledger.TotalRaisedFile},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Prepare resolves the branch head and stages the tracked files into
// a fresh in-memory filesystem. Files absent from the repository are
// simply absent from the staging filesystem.
func (p *GitHubPublisher) Prepare(ctx context.Context) (billy.Filesystem, error) {
	ref, _, err := p.client.Git.GetRef(ctx, p.owner, p.repo, "heads/"+p.branch)
	if err != nil {
		return nil, fmt.Errorf("resolving branch %s: %w", p.branch, mapAPIErr(err))
	}
	p.head = ref.GetObject().GetSHA()

	fs := memfs.New()
	base := make(map[string]remoteFile, len(p.tracked))
	for _, name := range p.tracked {
		rf, ok, err := p.fetch(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", name, err)
		}
		if !ok {
			continue
		}
		if err := util.WriteFile(fs, name, rf.data, 0o644); err != nil {
			return nil, fmt.Errorf("staging %s: %w", name, err)
		}
		base[name] = rf
	}
	p.fs = fs
	p.base = base
	return fs, nil
}

// Publish uploads every staged file whose content differs from the
// repository. Each changed file becomes its own commit carrying the
// given message; the returned revision is the last commit created.
func (p *GitHubPublisher) Publish(ctx context.Context, message string) (Result, error) {
	if message == "" {
		return Result{}, errors.New("commit message is required")
	}
	if p.fs == nil {
		return Result{}, errors.New("publish called before prepare")
	}

	names, err := stagedFiles(p.fs)
	if err != nil {
		return Result{}, err
	}

	uploaded := 0
	rev := p.head
	for _, name := range names {
		data, err := util.ReadFile(p.fs, name)
		if err != nil {
			return Result{}, fmt.Errorf("reading staged %s: %w", name, err)
		}

		rf, exists := p.base[name]
		if !exists {
			// Not seeded at Prepare. Check the repository before
			// deciding between create and update.
			rf, exists, err = p.fetch(ctx, name)
			if err != nil {
				return Result{}, fmt.Errorf("checking %s: %w", name, err)
			}
		}
		if exists && bytes.Equal(rf.data, data) {
			continue
		}

		opts := &github.RepositoryContentFileOptions{
			Message: github.Ptr(message),
			Content: data,
			Branch:  github.Ptr(p.branch),
			Committer: &github.CommitAuthor{
				Name:  github.Ptr(p.committerName),
				Email: github.Ptr(p.committerEmail),
			},
		}
		var resp *github.RepositoryContentResponse
		if exists {
			opts.SHA = github.Ptr(rf.sha)
			resp, _, err = p.client.Repositories.UpdateFile(ctx, p.owner, p.repo, name, opts)
		} else {
			resp, _, err = p.client.Repositories.CreateFile(ctx, p.owner, p.repo, name, opts)
		}
		if err != nil {
			return Result{}, fmt.Errorf("uploading %s: %w", name, mapAPIErr(err))
		}
		p.base[name] = remoteFile{sha: resp.GetContent().GetSHA(), data: data}
		rev = resp.Commit.GetSHA()
		uploaded++
	}

	if uploaded == 0 {
		return Result{Revision: p.head}, nil
	}
	p.head = rev
	return Result{Published: true, Revision: rev}, nil
}

// fetch reads one file from the repository branch. The second return
// is false when the file does not exist.
func (p *GitHubPublisher) fetch(ctx context.Context, name string) (remoteFile, bool, error) {
	fc, dir, resp, err := p.client.Repositories.GetContents(ctx, p.owner, p.repo, name,
		&github.RepositoryContentGetOptions{Ref: p.branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return remoteFile{}, false, nil
		}
		return remoteFile{}, false, mapAPIErr(err)
	}
	if dir != nil || fc == nil {
		return remoteFile{}, false, fmt.Errorf("%s is a directory", name)
	}
	content, err := fc.GetContent()
	if err != nil {
		return remoteFile{}, false, fmt.Errorf("decoding %s: %w", name, err)
	}
	return remoteFile{sha: fc.GetSHA(), data: []byte(content)}, true, nil
}

// stagedFiles lists every regular file in the staging filesystem,
// lexically ordered, paths relative to its root.
func stagedFiles(fs billy.Filesystem) ([]string, error) {
	var names []string
	err := util.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		names = append(names, strings.TrimPrefix(filepath.ToSlash(path), "/"))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking staged files: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// mapAPIErr tags API failures with the shared publish sentinels so
// callers can classify without knowing the transport.
func mapAPIErr(err error) error {
	var ge *github.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		switch ge.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Join(gitrepo.ErrAuthRequired, err)
		case http.StatusConflict:
			return errors.Join(gitrepo.ErrNotFastForward, err)
		}
	}
	return err
}
