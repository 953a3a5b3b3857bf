/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package teamwater

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Amount is a monetary value. The upstream API emits amounts as JSON
// numbers or as quoted numeric strings depending on the endpoint and
// deploy, so Amount accepts both and always marshals as a number.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*a = Amount(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("amount %s is neither number nor string", data)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("amount %q: %w", s, err)
	}
	*a = Amount(n)
	return nil
}

// Float64 returns the amount as a plain float64.
func (a Amount) Float64() float64 { return float64(a) }

// ID is a donation identifier. Upstream has shipped both string and
// integer identifiers, so decoding accepts either and canonicalizes
// to the string form donation records are keyed by.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id %s is neither string nor number", data)
	}
	*id = ID(n.String())
	return nil
}

// Donation is a single donation as reported by the campaign API.
type Donation struct {
	ID           ID     `json:"id"`
	Amount       Amount `json:"amount"`
	Currency     string `json:"currency,omitempty"`
	DonorName    string `json:"donor_name,omitempty"`
	DonorComment string `json:"donor_comment,omitempty"`
	// CompletedAt is the upstream completion time, an RFC3339-ish
	// string. It is kept verbatim so published records match the API.
	CompletedAt string `json:"completed_at"`
}

// Total is the campaign-wide running total.
type Total struct {
	Raised Amount `json:"total_raised"`
}
