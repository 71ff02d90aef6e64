package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/SoftwearDevelopment/spynl/internal/codec"
	"github.com/SoftwearDevelopment/spynl/internal/validation"
)

var (
	validateSchemaDir    string
	validateInstructions string
	validatePayload      string
	validateDirection    string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a payload against validation instructions",
	Long: `Validate a JSON payload the way an endpoint would.

The instructions file is a YAML list of {schema, in, apply-to, repeat}
entries, as found in an endpoint's validation block.

Examples:
  spynl validate --instructions person.yaml --payload person.json
  spynl validate --schema-dir ./schemas --instructions out.yaml --payload out.json --in response`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateSchemaDir, "schema-dir", "schemas", "directory holding the JSON schemas")
	validateCmd.Flags().StringVar(&validateInstructions, "instructions", "", "YAML file with validation instructions")
	validateCmd.Flags().StringVar(&validatePayload, "payload", "", "JSON file with the payload")
	validateCmd.Flags().StringVar(&validateDirection, "in", string(validation.Request), "payload direction: request or response")
	_ = validateCmd.MarkFlagRequired("instructions")
	_ = validateCmd.MarkFlagRequired("payload")
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(validateInstructions)
	if err != nil {
		return fmt.Errorf("read instructions: %w", err)
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse instructions: %w", err)
	}
	instructions, err := validation.ParseInstructions(raw)
	if err != nil {
		return err
	}

	data, err = os.ReadFile(validatePayload)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	payload, err := codec.DecodeJSONValue(data, codec.DefaultHooks())
	if err != nil {
		return err
	}

	direction := validation.Direction(validateDirection)
	if direction != validation.Request && direction != validation.Response {
		return fmt.Errorf("--in must be %q or %q", validation.Request, validation.Response)
	}

	store := validation.NewStore(validateSchemaDir, slog.New(slog.DiscardHandler))
	defer store.Close()

	if err := validation.New(store).Validate(payload, instructions, direction); err != nil {
		return err
	}
	fmt.Println("Payload is valid.")
	return nil
}
