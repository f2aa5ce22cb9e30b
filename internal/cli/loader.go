package cli

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// parseKind validates an entity-kind argument.
func parseKind(arg string) (entity.Kind, error) {
	kind := entity.Kind(arg)
	if !kind.Valid() {
		return "", WrapExitError(ExitCommandError,
			fmt.Sprintf("unknown entity kind %q", arg), nil)
	}
	return kind, nil
}

// loadPayload reads a mutation payload from a YAML file. "-" reads stdin.
func loadPayload(path string) (entity.Payload, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read payload file", err)
	}

	var payload entity.Payload
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse payload YAML", err)
	}
	if payload == nil {
		payload = entity.Payload{}
	}
	return payload, nil
}
