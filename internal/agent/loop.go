// Package agent implements the assistant loop: a bounded exchange with
// the remote model in which each reply is either a tool call against
// the user's planning document or a final answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/axis/internal/llm"
	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/reschedule"
	"github.com/nugget/axis/internal/tools"
	"github.com/nugget/axis/internal/usage"
)

const (
	emptyMessageReply = "What would you like me to help with?"
	exhaustedReply    = "Sorry, I couldn't finish that in the steps I'm allowed. Here is what I got done so far."
)

// Limits bounds a single conversation.
type Limits struct {
	MaxSteps  int
	MaxTasks  int
	MaxHabits int
}

// DefaultLimits returns the stock bounds: six model round trips, 120
// tasks and 80 habits in the snapshot.
func DefaultLimits() Limits {
	return Limits{MaxSteps: 6, MaxTasks: 120, MaxHabits: 80}
}

// DocumentStore loads and saves a user's planning document.
type DocumentStore interface {
	LoadDocument(ctx context.Context, userID string) (*planner.Document, error)
	SaveDocument(ctx context.Context, userID string, doc *planner.Document) error
}

// Result is the outcome of one conversation.
type Result struct {
	Reply   string            `json:"reply"`
	Plan    []string          `json:"plan"`
	Actions []string          `json:"actions"`
	Data    *planner.Document `json:"data"`

	// Steps is the number of model round trips made.
	Steps int `json:"-"`
	// Exhausted is set when the step bound was reached without a final
	// answer.
	Exhausted bool `json:"-"`
}

// Config holds the loop's dependencies and policy.
type Config struct {
	Store       DocumentStore
	Client      llm.Client
	Tools       *tools.Registry
	Limits      Limits
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
}

// Loop is the assistant execution loop. It is safe for concurrent use;
// each Run works on its own copy of the document.
type Loop struct {
	store       DocumentStore
	client      llm.Client
	tools       *tools.Registry
	limits      Limits
	temperature float64
	maxTokens   int
	logger      *slog.Logger
	now         func() time.Time
}

// NewLoop creates an assistant loop. Zero limits fall back to
// [DefaultLimits].
func NewLoop(cfg Config) *Loop {
	def := DefaultLimits()
	if cfg.Limits.MaxSteps <= 0 {
		cfg.Limits.MaxSteps = def.MaxSteps
	}
	if cfg.Limits.MaxTasks <= 0 {
		cfg.Limits.MaxTasks = def.MaxTasks
	}
	if cfg.Limits.MaxHabits <= 0 {
		cfg.Limits.MaxHabits = def.MaxHabits
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		store:       cfg.Store,
		client:      cfg.Client,
		tools:       cfg.Tools,
		limits:      cfg.Limits,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger.With("component", "agent"),
		now:         time.Now,
	}
}

// Run handles one user message. The document is loaded once, mutated
// in memory by tool calls, and saved once on every exit path after the
// model has been consulted. A transport failure from the model, or a
// schedule that fails validation, ends the run with an error after the
// partial document has been saved.
func (l *Loop) Run(ctx context.Context, userID, message string) (*Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return &Result{Reply: emptyMessageReply, Plan: []string{}, Actions: []string{}}, nil
	}

	doc, err := l.store.LoadDocument(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	// The model call is not cancelled when the caller goes away, so
	// whatever the run has done still gets saved.
	base := context.WithoutCancel(ctx)
	modelCtx := usage.WithAttribution(base, userID, usage.PurposeAgent)
	toolCtx := usage.WithAttribution(base, userID, usage.PurposeReschedule)

	log := l.logger.With("user_id", userID)
	log.Info("assistant run started", "message_len", len(message), "max_steps", l.limits.MaxSteps)
	start := l.now()

	system := systemPrompt(l.tools.List())
	var (
		entries []logEntry
		actions []string
	)

	for step := 0; step < l.limits.MaxSteps; step++ {
		user, err := l.userPrompt(doc, message, entries)
		if err != nil {
			log.Error("build prompt failed", "step", step, "error", err)
			return nil, l.abort(ctx, userID, doc, step, err)
		}
		log.Log(ctx, llm.LevelTrace, "assistant prompt", "step", step, "prompt", user)

		resp, err := l.client.Complete(modelCtx, llm.Request{
			System:      system,
			User:        user,
			Temperature: l.temperature,
			MaxTokens:   l.maxTokens,
			JSON:        true,
		})
		if err != nil {
			if errors.Is(err, llm.ErrUpstreamMalformed) {
				log.Warn("unusable model reply", "step", step, "error", err)
				entries = append(entries, replyFailure(step, err))
				continue
			}
			log.Error("model call failed", "step", step, "error", err)
			return nil, l.abort(ctx, userID, doc, step+1, err)
		}
		log.Log(ctx, llm.LevelTrace, "assistant reply", "step", step, "reply", resp.Text)

		r, err := parseReply(resp.Text)
		if err != nil {
			log.Debug("unparseable model reply", "step", step, "error", err)
			entries = append(entries, replyFailure(step, err))
			continue
		}

		if r.Type == replyFinal {
			if err := l.save(ctx, userID, doc); err != nil {
				return nil, err
			}
			log.Info("assistant run completed",
				"steps", step+1,
				"actions", len(actions),
				"elapsed", l.now().Sub(start).Round(time.Millisecond),
			)
			return &Result{
				Reply:   render(r.Reply, r.Plan, actions),
				Plan:    nonNil(r.Plan),
				Actions: nonNil(actions),
				Data:    doc,
				Steps:   step + 1,
			}, nil
		}

		res, err := l.tools.Execute(toolCtx, doc, r.Tool, r.Args)
		entries = append(entries, toolEntry(step, r.Tool, r.Args, res))
		if err == nil {
			log.Info("tool executed", "step", step, "tool", r.Tool, "action", res.Action)
			actions = append(actions, res.Action)
			continue
		}
		if fatalToolError(err) {
			log.Error("tool failed", "step", step, "tool", r.Tool, "error", err)
			return nil, l.abort(ctx, userID, doc, step+1, err)
		}
		log.Debug("tool failed", "step", step, "tool", r.Tool, "error", err)
	}

	if err := l.save(ctx, userID, doc); err != nil {
		return nil, err
	}
	log.Warn("assistant run exhausted",
		"steps", l.limits.MaxSteps,
		"actions", len(actions),
		"elapsed", l.now().Sub(start).Round(time.Millisecond),
	)
	return &Result{
		Reply:     render(exhaustedReply, nil, actions),
		Plan:      []string{},
		Actions:   nonNil(actions),
		Data:      doc,
		Steps:     l.limits.MaxSteps,
		Exhausted: true,
	}, nil
}

// abort saves doc and returns cause annotated with the step count. A
// save failure is reported alongside cause.
func (l *Loop) abort(ctx context.Context, userID string, doc *planner.Document, steps int, cause error) error {
	if err := l.save(ctx, userID, doc); err != nil {
		return errors.Join(fmt.Errorf("assistant stopped after %d steps: %w", steps, cause), err)
	}
	return fmt.Errorf("assistant stopped after %d steps: %w", steps, cause)
}

func (l *Loop) save(ctx context.Context, userID string, doc *planner.Document) error {
	if err := l.store.SaveDocument(context.WithoutCancel(ctx), userID, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// fatalToolError reports whether a tool failure should end the run
// rather than be handed back to the model.
func fatalToolError(err error) bool {
	return errors.Is(err, llm.ErrUpstreamUnavailable) ||
		errors.Is(err, llm.ErrUpstreamMalformed) ||
		errors.Is(err, reschedule.ErrInvalidResult)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
