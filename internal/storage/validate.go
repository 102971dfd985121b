/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"fmt"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/story.schema.json
var storySchemaJSON []byte

//go:embed schemas/save.schema.json
var saveSchemaJSON []byte

// ValidateManifest checks raw manifest bytes against the embedded story
// schema. Problems come back as warnings so a slightly off manifest still
// opens; callers decide how loud to be about them.
func ValidateManifest(data []byte) []string {
	return validateAgainst(storySchemaJSON, data)
}

// ValidateSave checks a runner checkpoint blob against the embedded save
// schema before it is written to a slot.
func ValidateSave(data []byte) []string {
	return validateAgainst(saveSchemaJSON, data)
}

func validateAgainst(schema, data []byte) []string {
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return []string{fmt.Sprintf("schema validation failed: %v", err)}
	}
	if result.Valid() {
		return nil
	}
	warns := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		warns = append(warns, e.String())
	}
	return warns
}
