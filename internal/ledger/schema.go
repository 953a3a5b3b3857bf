/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"

	"github.com/go-git/go-billy/v5/util"
	"github.com/invopop/jsonschema"
)

// SchemaDir is where WriteSchemas places the schema files, relative
// to the ledger root.
const SchemaDir = "schema"

// reflector is wired with the defaults the published schemas need:
// inline definitions so each schema file stands alone.
func reflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
	}
}

// Schemas returns the JSON schema for each published ledger file,
// keyed by schema file name.
func Schemas() map[string]*jsonschema.Schema {
	r := reflector()
	return map[string]*jsonschema.Schema{
		"donations.schema.json":    r.Reflect(&[]Record{}),
		"total_raised.schema.json": r.Reflect(&[]Snapshot{}),
	}
}

// WriteSchemas materializes the ledger schemas under SchemaDir so the
// published repository describes its own format. Existing files are
// overwritten; output is stable, so unchanged schemas produce no diff.
func (s *Store) WriteSchemas() error {
	if err := s.fs.MkdirAll(SchemaDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", SchemaDir, err)
	}
	for name, schema := range Schemas() {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(schema); err != nil {
			return fmt.Errorf("encoding schema %s: %w", name, err)
		}
		if err := util.WriteFile(s.fs, path.Join(SchemaDir, name), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing schema %s: %w", name, err)
		}
	}
	return nil
}
