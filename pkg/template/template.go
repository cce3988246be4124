// Package template renders text templates over approval requests for side-effect configuration.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/approvals/pkg/models"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"env": os.Getenv,
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)

		return string(b), err
	},
	"join": strings.Join,
}

// RequestData is the data a template sees: .request, .metadata and .approvers.
func RequestData(request *models.ApprovalRequest) map[string]any {
	return map[string]any{
		"request":   request,
		"metadata":  request.Metadata,
		"approvers": request.AssignedTo,
	}
}

// Render executes templateStr against data. A string without actions is returned as is.
func Render(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.New("approvals").Funcs(funcs).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Validate parses templateStr without executing it.
func Validate(templateStr string) error {
	_, err := template.New("approvals").Funcs(funcs).Parse(templateStr)
	if err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}

	return nil
}
