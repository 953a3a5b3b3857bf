/*
Copyright 2026 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders ledger contents and collection results as
// markdown tables for terminal output and CI job summaries.
package report
