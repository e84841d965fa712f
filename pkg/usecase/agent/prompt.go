package agent

import (
	"context"
	_ "embed"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/aigis/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/persona.md
var defaultPersona string

// DefaultPersona returns the built-in persona prompt
func DefaultPersona() string {
	return strings.TrimSpace(defaultPersona)
}

// LoadPersona reads the persona prompt from path. A missing or empty file
// falls back to DefaultPersona.
func LoadPersona(ctx context.Context, path string) (string, error) {
	if path == "" {
		return DefaultPersona(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.From(ctx).Info("persona prompt not found, using default", "path", path)
			return DefaultPersona(), nil
		}
		return "", goerr.Wrap(err, "failed to read persona prompt", goerr.V("path", path))
	}

	persona := strings.TrimSpace(string(raw))
	if persona == "" {
		return DefaultPersona(), nil
	}
	return persona, nil
}

// SystemPrompt composes the tool catalog, the persona and the current time
func (a *Agent) SystemPrompt(ctx context.Context) (string, error) {
	catalog, err := a.tools.Catalog(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to build tool catalog")
	}

	var b strings.Builder
	if catalog = strings.TrimSpace(catalog); catalog != "" {
		b.WriteString(catalog)
		b.WriteString("\n\n")
	}
	b.WriteString(a.persona)
	b.WriteString("\n\nCurrent time: ")
	b.WriteString(a.now().UTC().Format(time.RFC3339))

	return b.String(), nil
}
