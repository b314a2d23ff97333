package transform

import (
	"context"
	"fmt"
	"strings"
)

// Bundled text operation names.
const (
	OpTextUppercase = "text.uppercase"
	OpTextTemplate  = "text.template"
)

// TextUppercase upper-cases the payload.
func TextUppercase(ctx context.Context, payload []byte, params map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(strings.ToUpper(string(payload))), nil
}

// TextTemplate substitutes the payload into the {input} placeholder of the
// node's template parameter.
func TextTemplate(ctx context.Context, payload []byte, params map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpl, ok := params["template"].(string)
	if !ok {
		return nil, fmt.Errorf("template: missing 'template' parameter")
	}
	return []byte(strings.ReplaceAll(tmpl, "{input}", string(payload))), nil
}
