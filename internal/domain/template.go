package domain

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template represents a message template. Subject is optional (SMS and push
// templates usually leave it empty).
type Template struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Channel         Channel   `json:"channel"`
	SubjectTemplate string    `json:"subject_template,omitempty"`
	BodyTemplate    string    `json:"body_template"`
	Variables       []string  `json:"variables"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// variablePattern matches template variables like {{variable_name}}
var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// NewTemplate creates a new active template
func NewTemplate(name string, channel Channel, subjectTemplate, bodyTemplate string) *Template {
	now := time.Now().UTC()
	t := &Template{
		ID:              uuid.New(),
		Name:            name,
		Channel:         channel,
		SubjectTemplate: subjectTemplate,
		BodyTemplate:    bodyTemplate,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.ExtractVariables()
	return t
}

// ExtractVariables extracts variable names from the subject and body templates
func (t *Template) ExtractVariables() {
	matches := variablePattern.FindAllStringSubmatch(t.SubjectTemplate+" "+t.BodyTemplate, -1)
	seen := make(map[string]bool)
	variables := make([]string, 0)

	for _, match := range matches {
		if len(match) > 1 && !seen[match[1]] {
			variables = append(variables, match[1])
			seen[match[1]] = true
		}
	}
	t.Variables = variables
}

// RenderText substitutes every {{k}} with vars[k], literally and without
// escaping. Placeholders without a matching variable stay in the output;
// rendering never fails. An empty variable map returns the template
// unchanged.
func RenderText(template string, vars map[string]string) string {
	result := template
	for key, value := range vars {
		placeholder := "{{" + key + "}}"
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// Render produces the subject and body for the given variables.
func (t *Template) Render(vars map[string]string) (subject, body string) {
	return RenderText(t.SubjectTemplate, vars), RenderText(t.BodyTemplate, vars)
}

// TemplateRepository defines the interface for template persistence.
// Delete is a soft deactivate: the row survives for audit, active becomes
// false and ingestion stops resolving the name.
type TemplateRepository interface {
	Create(ctx context.Context, template *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	GetByName(ctx context.Context, name string) (*Template, error)
	List(ctx context.Context) ([]*Template, error)
	Update(ctx context.Context, template *Template) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}
