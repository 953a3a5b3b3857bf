/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package ledger maintains the published donation data files:
//   - donations.json: every donation ever observed, newest first,
//     exactly one record per donation ID.
//   - total_raised.json: a rolling series of campaign totals, one
//     entry per observed change, capped to the most recent 100.
//
// The Store writes through a billy.Filesystem so the same code drives
// a git worktree on disk, an in-memory staging area for API publishes,
// and memfs fixtures in tests. Loads are tolerant: a missing or
// corrupt file starts the ledger empty instead of failing collection.
package ledger
