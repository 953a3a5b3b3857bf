/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Sentinel errors for publish outcomes callers branch on. They wrap
// the underlying go-git errors behind a stable surface.
var (
	// ErrNoChanges means the working tree was clean: nothing to
	// commit, nothing to push.
	ErrNoChanges = errors.New("no changes to publish")

	// ErrNotFastForward means the remote moved between sync and push.
	// Re-synchronizing and rebuilding the changes resolves it.
	ErrNotFastForward = errors.New("push rejected: not a fast-forward")

	// ErrAuthRequired means the remote rejected our credentials (or
	// we had none). Retrying without operator action is pointless.
	ErrAuthRequired = errors.New("authentication required")
)

// mapTransportErr folds go-git transport failures into the package
// sentinels. Unrecognized errors pass through untouched.
func mapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		return errors.Join(ErrAuthRequired, err)
	}
	if errors.Is(err, git.ErrNonFastForwardUpdate) || isNonFastForwardText(err) {
		return errors.Join(ErrNotFastForward, err)
	}
	return err
}

// isNonFastForwardText catches rejections that surface as report-status
// lines rather than typed errors. go-git's push path does both
// depending on the transport.
func isNonFastForwardText(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "non-fast-forward") ||
		strings.Contains(msg, "fetch first") ||
		strings.Contains(msg, "cannot lock ref")
}

// Classify names an error for structured logs and metric labels.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNoChanges):
		return "no_changes"
	case errors.Is(err, ErrAuthRequired):
		return "auth"
	case errors.Is(err, ErrNotFastForward):
		return "non_fast_forward"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transient"
	}
}
