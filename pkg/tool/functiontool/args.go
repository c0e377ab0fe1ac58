// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package functiontool

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// mapToStruct decodes model-supplied arguments into the typed struct.
// Numbers inside untyped fields stay json.Number so integers survive.
func mapToStruct(m map[string]any, target any) error {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal args: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}
	return nil
}

// generateSchema reflects an inline object schema for T. Only fields tagged
// jsonschema:"required" are required.
func generateSchema[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	data, err := json.Marshal(reflector.Reflect(new(T)))
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}

	if schema["type"] != "object" {
		delete(schema, "$schema")
		delete(schema, "$id")
		return schema, nil
	}

	result := map[string]any{
		"type":       "object",
		"properties": schema["properties"],
	}
	if required, ok := schema["required"]; ok && schema["properties"] != nil {
		result["required"] = required
	}
	if addProps, ok := schema["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	if result["properties"] == nil {
		result["properties"] = map[string]any{}
	}
	return result, nil
}
