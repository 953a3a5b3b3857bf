/*
Copyright 2026 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package publish abstracts how ledger changes reach the data
// repository. Two implementations exist:
//   - GitPublisher drives a local working copy through gitrepo and
//     pushes commits over the git protocol. The daemon default.
//   - GitHubPublisher edits files directly through the GitHub
//     Contents API, for environments that cannot keep a working copy
//     on disk. Collection writes land in an in-memory staging
//     filesystem and changed files are uploaded one by one.
//
// Both present the same two-phase surface: Prepare returns the
// filesystem collection should write through, Publish ships whatever
// changed with the given commit message.
package publish
