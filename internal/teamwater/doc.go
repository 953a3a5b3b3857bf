/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package teamwater is the client for the TeamWater campaign API. The
// upstream surface is two unauthenticated endpoints:
//   - GET {base}/donations returns the recent donations as a JSON array.
//   - GET {base}/total_raised returns {"total_raised": N}.
//
// The API is served through a CDN that occasionally rate limits and
// returns numeric fields as either JSON numbers or quoted strings, so
// the client retries transient failures with backoff and decodes
// amounts tolerantly. All requests honor the caller's context.
package teamwater
