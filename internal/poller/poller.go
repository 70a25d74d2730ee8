package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/tenx-cards/internal/generation"
)

var (
	ErrTimeout = errors.New("generation exceeded the time limit")
	ErrFetch   = errors.New("failed to fetch generation status")
)

// Fetcher loads the current state of a generation session.
type Fetcher interface {
	GetGenerationSession(ctx context.Context, sessionID uuid.UUID) (*generation.SessionView, error)
}

var messages = map[generation.Status]string{
	generation.StatusInProgress: "generation in progress, may take up to 5 minutes",
	generation.StatusCompleted:  "generation completed, redirecting",
	generation.StatusFailed:     "an error occurred during generation",
	generation.StatusTimeout:    "generation exceeded the time limit",
}

// Status is what a caller renders for one fetched snapshot.
type Status struct {
	State        generation.Status `json:"state"`
	Message      string            `json:"message"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	ErrorCode    *string           `json:"error_code,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	DeckID       uuid.UUID         `json:"deck_id"`
}

func (s Status) Terminal() bool { return s.State.Terminal() }

// Present maps a session onto its display record.
func Present(v *generation.SessionView) Status {
	msg, ok := messages[v.Status]
	if !ok {
		msg = "unknown generation status"
	}
	return Status{
		State:        v.Status,
		Message:      msg,
		StartedAt:    v.StartedAt,
		FinishedAt:   v.FinishedAt,
		ErrorCode:    v.ErrorCode,
		ErrorMessage: v.ErrorMessage,
		DeckID:       v.DeckID,
	}
}

// Update carries exactly one of Status or Err.
type Update struct {
	Status *Status
	Err    error
}

type Poller struct {
	Interval    time.Duration
	Timeout     time.Duration
	Fetcher     Fetcher
	OnCompleted func(Status)

	now func() time.Time
}

func New(f Fetcher) *Poller {
	return &Poller{Interval: 2 * time.Second, Timeout: 5 * time.Minute, Fetcher: f}
}

// Observe fetches immediately and then on every Interval until the session is
// terminal, the local Timeout elapses, a fetch fails, or ctx is cancelled.
// The channel is closed when observation ends.
func (p *Poller) Observe(ctx context.Context, sessionID uuid.UUID) <-chan Update {
	out := make(chan Update)
	go p.loop(ctx, sessionID, out)
	return out
}

func (p *Poller) loop(ctx context.Context, sessionID uuid.UUID, out chan<- Update) {
	defer close(out)

	interval, timeout := p.Interval, p.Timeout
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	now := p.now
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := now()
	for {
		if now().Sub(start) > timeout {
			emit(ctx, out, Update{Err: ErrTimeout})
			return
		}

		v, err := p.Fetcher.GetGenerationSession(ctx, sessionID)
		if err != nil {
			if ctx.Err() == nil {
				emit(ctx, out, Update{Err: fmt.Errorf("%w: %w", ErrFetch, err)})
			}
			return
		}

		st := Present(v)
		if !emit(ctx, out, Update{Status: &st}) {
			return
		}
		if st.Terminal() {
			if st.State == generation.StatusCompleted && p.OnCompleted != nil {
				p.OnCompleted(st)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func emit(ctx context.Context, out chan<- Update, u Update) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
