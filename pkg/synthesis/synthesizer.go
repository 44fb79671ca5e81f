// Package synthesis turns gathered context into a candidate agenda by prompting an LLM.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/agendaflow/pkg/llm"
	"github.com/dukex/agendaflow/pkg/metrics"
	"github.com/dukex/agendaflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// DefaultTimeout bounds a whole synthesis, retry included.
const DefaultTimeout = 60 * time.Second

// ErrSynthesisFailed is wrapped by every error returned from Synthesize.
var ErrSynthesisFailed = errors.New("synthesis failed")

// SynthesisError reports that no usable proposal was produced.
type SynthesisError struct {
	Attempts int
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesisFailed
}

type Config struct {
	// Timeout is the deadline around the completion calls. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Synthesizer builds candidate plans. It holds no per-execution state.
type Synthesizer struct {
	completer llm.Completer
	parser    *parser
	timeout   time.Duration
	logger    *slog.Logger
}

func NewSynthesizer(completer llm.Completer, validate *validator.Validate, config Config, logger *slog.Logger) (*Synthesizer, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}

	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}

	p, err := newParser(validate)
	if err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Synthesizer{
		completer: completer,
		parser:    p,
		timeout:   timeout,
		logger:    logger.With("module", "plan_synthesizer"),
	}, nil
}

// Synthesize asks the model for a plan. On iteration, prior and feedback frame a
// correction. An unparsable answer or a failed completion is retried once with a
// reformat instruction; a second failure returns a *SynthesisError.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	pc *models.PlanContext,
	prior *models.AgendaProposal,
	feedback string,
) (*models.AgendaProposal, error) {
	if pc == nil {
		return nil, &SynthesisError{Err: errors.New("plan context is required")}
	}

	window := pc.Window
	if window.Start.IsZero() || window.End.IsZero() {
		var err error

		window, err = models.DefaultWindow(pc.TargetDate, time.UTC)
		if err != nil {
			return nil, &SynthesisError{Err: err}
		}
	}

	withWindow := *pc
	withWindow.Window = window

	prompt, err := buildPrompt(&withWindow, prior, feedback)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}

	logger := s.logger.With("user_id", pc.UserID, "target_date", pc.TargetDate, "revising", prior != nil)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		metrics.ObserveSynthesisDuration(time.Since(started).Seconds())
	}()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}

	raw, content, err := s.attempt(ctx, messages)
	if err != nil {
		logger.WarnContext(ctx, "Synthesis attempt failed, retrying with reformat instruction", "error", err)

		retry := append([]llm.Message{}, messages...)
		if content != "" {
			retry = append(retry, llm.Message{Role: llm.RoleAssistant, Content: content})
		}

		retry = append(retry, llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(reformatInstruction, err)})

		raw, _, err = s.attempt(ctx, retry)
		if err != nil {
			logger.ErrorContext(ctx, "Synthesis failed after retry", "error", err)

			return nil, &SynthesisError{Attempts: 2, Err: err}
		}
	}

	items, dropped := repair(toItems(raw.Items, window.Start), window, withWindow.Calendar.Commitments())
	if len(dropped) > 0 {
		metrics.RecordItemsDropped(len(dropped))
		logger.InfoContext(ctx, "Dropped synthesized items", "count", len(dropped), "reasons", dropped)
	}

	proposal := &models.AgendaProposal{
		Date:        pc.TargetDate,
		Summary:     raw.Summary,
		Items:       items,
		Commitments: withWindow.Calendar.Commitments(),
		Targets:     pc.Targets(),
	}

	logger.InfoContext(ctx, "Synthesized proposal", "items", len(items))

	return proposal, nil
}

// attempt performs one completion and parse. The raw content is returned even on
// parse failure so that the retry can show the model what it produced.
func (s *Synthesizer) attempt(ctx context.Context, messages []llm.Message) (*rawProposal, string, error) {
	resp, err := s.completer.Complete(ctx, llm.CompletionRequest{
		Messages:   messages,
		SchemaName: schemaName,
		Schema:     proposalSchema(),
	})
	if err != nil {
		if llm.IsParseError(err) {
			metrics.RecordSynthesisAttempt("parse_error")
		} else {
			metrics.RecordSynthesisAttempt("completion_error")
		}

		return nil, "", err
	}

	raw, err := s.parser.parse(resp.Content)
	if err != nil {
		metrics.RecordSynthesisAttempt("parse_error")

		return nil, resp.Content, err
	}

	metrics.RecordSynthesisAttempt("success")

	return raw, resp.Content, nil
}
