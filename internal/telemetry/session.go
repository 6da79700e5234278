package telemetry

import (
	"context"
	"errors"

	"github.com/banshee-data/highway.planner/internal/planner"
)

// Session binds one planner to one simulator connection.
type Session struct {
	planner  *planner.Planner
	smoother PathSmoother
}

// NewSession returns a session driving p. A nil smoother uses
// DefaultContinuePath.
func NewSession(p *planner.Planner, smoother PathSmoother) *Session {
	if smoother == nil {
		smoother = DefaultContinuePath()
	}
	return &Session{planner: p, smoother: smoother}
}

// Planner returns the session's planner.
func (s *Session) Planner() *planner.Planner { return s.planner }

// Handle processes one text frame. It returns the reply to send, which is
// empty when the frame needs none, and the decision when a planning cycle
// ran. Frames that are not events return ErrNotEvent; a malformed
// telemetry payload returns its decode error together with ManualReply.
func (s *Session) Handle(ctx context.Context, msg string) (string, *planner.Decision, error) {
	payload, err := ExtractEvent(msg)
	switch {
	case errors.Is(err, ErrNoData):
		return ManualReply, nil, nil
	case err != nil:
		return "", nil, err
	}

	t, err := DecodeTelemetry(payload)
	if errors.Is(err, ErrUnexpectedEvent) {
		tracef("ignoring %v", err)
		return "", nil, nil
	}
	if err != nil {
		return ManualReply, nil, err
	}

	d := s.planner.Cycle(ctx, t.Input())
	path := s.smoother.Smooth(Handoff{Decision: d, Telemetry: t})
	reply, err := EncodeControl(path)
	if err != nil {
		return ManualReply, &d, err
	}
	return reply, &d, nil
}
