/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package gitrepo keeps a persistent working copy of the data
// repository aligned with its remote and publishes ledger changes
// back to it. A Manager is configured with the remote URL, branch,
// local path, and commit identity for the automation, and exposes
// Checkout handles that:
//   - Force the working tree to the remote branch head, discarding
//     any local drift, before collection writes into it.
//   - Expose the worktree filesystem for the ledger to write through.
//   - Offer CommitAndPush, which stages everything, commits with the
//     configured identity, and pushes with transient-failure retry.
//
// A working copy that fails local preparation is deleted and cloned
// once from scratch, so corruption from an interrupted run heals
// without operator intervention.
package gitrepo
