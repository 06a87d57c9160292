package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cobra"

	"github.com/getpactd/pactd/pkg/pact"
)

// pactSchema covers the structural shape shared by all pact versions.
// Semantic checks (rule kinds, body encodings, interaction identity)
// happen in the loader after the schema gate.
const pactSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["consumer", "provider"],
  "properties": {
    "consumer": {
      "type": "object",
      "required": ["name"],
      "properties": {"name": {"type": "string", "minLength": 1}}
    },
    "provider": {
      "type": "object",
      "required": ["name"],
      "properties": {"name": {"type": "string", "minLength": 1}}
    },
    "interactions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "description": {"type": "string", "minLength": 1},
          "providerStates": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {"name": {"type": "string"}}
            }
          }
        }
      }
    },
    "messages": {"type": "array"},
    "metadata": {"type": "object"}
  }
}`

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate pact files",
		Long:  "Check pact files against the pact schema and the loader's semantic rules.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	schema, err := jsonschema.CompileString("pact.json", pactSchema)
	if err != nil {
		return fmt.Errorf("internal schema error: %w", err)
	}

	failed := false
	for _, path := range args {
		if err := validateFile(schema, path); err != nil {
			failed = true
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	return nil
}

func validateFile(schema *jsonschema.Schema, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}

	p, err := pact.Read(data)
	if err != nil {
		return err
	}
	return p.Validate()
}
