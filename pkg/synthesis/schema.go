package synthesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/agendaflow/pkg/llm"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

const schemaName = "agenda_proposal"

const clockPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`

// proposalSchema is the response format the model is constrained to.
func proposalSchema() map[string]any {
	categories := make([]string, 0, len(models.ItemCategories))
	for _, category := range models.ItemCategories {
		categories = append(categories, string(category))
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []any{"summary", "items"},
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []any{"category", "title", "start", "end", "rationale"},
					"properties": map[string]any{
						"category":   map[string]any{"type": "string", "description": "one of " + strings.Join(categories, ", ")},
						"title":      map[string]any{"type": "string", "minLength": 1},
						"start":      map[string]any{"type": "string", "pattern": clockPattern},
						"end":        map[string]any{"type": "string", "pattern": clockPattern},
						"location":   map[string]any{"type": "string"},
						"notes":      map[string]any{"type": "string"},
						"rationale":  map[string]any{"type": "string"},
						"pursuit_id": map[string]any{"type": "string"},
					},
				},
			},
		},
	}
}

// rawProposal is the shape the model answers with. Times are wall clock "HH:MM"
// on the target date.
type rawProposal struct {
	Summary string    `json:"summary" validate:"required"`
	Items   []rawItem `json:"items"   validate:"dive"`
}

type rawItem struct {
	Category  string `json:"category"             validate:"required"`
	Title     string `json:"title"                validate:"required"`
	Start     string `json:"start"                validate:"required"`
	End       string `json:"end"                  validate:"required"`
	Location  string `json:"location,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Rationale string `json:"rationale"`
	PursuitID string `json:"pursuit_id,omitempty"`
}

type parser struct {
	schema   *gojsonschema.Schema
	validate *validator.Validate
}

func newParser(validate *validator.Validate) (*parser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(proposalSchema()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile proposal schema: %w", err)
	}

	return &parser{schema: schema, validate: validate}, nil
}

// parse validates content against the schema and decodes it. Every failure is a
// *llm.ParseError so that the caller can ask the model to reformat.
func (p *parser) parse(content string) (*rawProposal, error) {
	content = stripFences(content)

	result, err := p.schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, &llm.ParseError{Content: content, Err: err}
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, schemaErr := range result.Errors() {
			messages = append(messages, schemaErr.String())
		}

		return nil, &llm.ParseError{Content: content, Err: errors.New(strings.Join(messages, "; "))}
	}

	var proposal rawProposal

	if err := json.Unmarshal([]byte(content), &proposal); err != nil {
		return nil, &llm.ParseError{Content: content, Err: err}
	}

	if err := p.validate.Struct(proposal); err != nil {
		return nil, &llm.ParseError{Content: content, Err: err}
	}

	return &proposal, nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	return strings.TrimSpace(trimmed)
}

// toItems places the wall clock times on the target date in the window location.
func toItems(raw []rawItem, date time.Time) []models.AgendaItem {
	items := make([]models.AgendaItem, 0, len(raw))

	for _, item := range raw {
		start, startErr := onDate(date, item.Start)
		end, endErr := onDate(date, item.End)

		if startErr != nil || endErr != nil {
			continue
		}

		items = append(items, models.AgendaItem{
			Category:  models.ItemCategory(strings.ToLower(strings.TrimSpace(item.Category))),
			Title:     strings.TrimSpace(item.Title),
			Start:     start,
			End:       end,
			Location:  item.Location,
			Notes:     item.Notes,
			Rationale: item.Rationale,
			PursuitID: item.PursuitID,
		})
	}

	return items
}

func onDate(date time.Time, clock string) (time.Time, error) {
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}

	return time.Date(date.Year(), date.Month(), date.Day(), parsed.Hour(), parsed.Minute(), 0, 0, date.Location()), nil
}
