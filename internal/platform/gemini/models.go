package gemini

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

var supportedModels = []string{
	"gemini-flash",
	"gemini-pro",
	"gemini-2.0-flash",
	"gemini-2.0-flash-exp",
	"gemini-2.0-flash-thinking-exp",
	"gemini-1.5-flash",
	"gemini-1.5-flash-002",
	"gemini-1.5-flash-8b",
}

var modelAliases = map[string]string{
	"gemini-flash": "gemini-2.0-flash-exp",
	"gemini-pro":   "gemini-2.0-flash-thinking-exp",
}

// SupportedModels returns the accepted model identifiers, aliases included.
func SupportedModels() []string {
	return slices.Clone(supportedModels)
}

// ResolveModel validates name and expands aliases to the upstream model id.
// An empty name resolves to DefaultModel.
func ResolveModel(name string) (string, error) {
	if name == "" {
		name = DefaultModel
	}
	if !slices.Contains(supportedModels, name) {
		return "", fmt.Errorf("gemini: model %q: %w (supported: %s)",
			name, domain.ErrUnsupportedModel, strings.Join(supportedModels, ", "))
	}
	if actual, ok := modelAliases[name]; ok {
		return actual, nil
	}
	return name, nil
}
