package usage

import (
	"context"
	"log/slog"

	"github.com/nugget/axis/internal/llm"
)

type attributionKey struct{}

type attribution struct {
	userID  string
	purpose string
}

// WithAttribution marks ctx so that model calls made with it are
// recorded against userID for purpose.
func WithAttribution(ctx context.Context, userID, purpose string) context.Context {
	return context.WithValue(ctx, attributionKey{}, attribution{userID: userID, purpose: purpose})
}

// Meter is an [llm.Client] that records the token usage of every
// successful call carrying an attribution. Calls without one pass
// through unrecorded. A failure to record is logged and never fails
// the call.
type Meter struct {
	next   llm.Client
	store  *Store
	logger *slog.Logger
}

// NewMeter wraps next.
func NewMeter(next llm.Client, store *Store, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Meter{next: next, store: store, logger: logger.With("component", "usage")}
}

// Provider implements [llm.Client].
func (m *Meter) Provider() string { return m.next.Provider() }

// Complete implements [llm.Client].
func (m *Meter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := m.next.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	a, ok := ctx.Value(attributionKey{}).(attribution)
	if !ok || a.userID == "" {
		return resp, nil
	}
	rec := Record{
		UserID:       a.userID,
		Provider:     m.next.Provider(),
		Model:        resp.Model,
		Purpose:      a.purpose,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	if rerr := m.store.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		m.logger.Warn("failed to record usage", "user_id", a.userID, "error", rerr)
	}
	return resp, nil
}
