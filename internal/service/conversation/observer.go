package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/phantom-panel/internal/domain"
)

type EventKind string

const (
	EventPhaseStarted   EventKind = "phase_started"
	EventPhaseCompleted EventKind = "phase_completed"
	EventTurnAppended   EventKind = "turn_appended"
	EventPersonaFailed  EventKind = "persona_failed"
)

// Event is a progress notification. Turn is set for EventTurnAppended and
// Failure for EventPersonaFailed.
type Event struct {
	TestID  string                   `json:"test_id"`
	Kind    EventKind                `json:"kind"`
	Phase   Phase                    `json:"phase"`
	Message string                   `json:"message,omitempty"`
	Turn    *domain.ConversationTurn `json:"turn,omitempty"`
	Failure *domain.PersonaFailure   `json:"failure,omitempty"`
	At      time.Time                `json:"at"`
}

// Observer receives events synchronously from the orchestrator goroutine.
// Implementations must not block for long.
type Observer interface {
	OnEvent(ctx context.Context, e Event)
}

type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) OnEvent(ctx context.Context, e Event) {
	f(ctx, e)
}

// Observers fans an event out in order.
type Observers []Observer

func (os Observers) OnEvent(ctx context.Context, e Event) {
	for _, o := range os {
		if o != nil {
			o.OnEvent(ctx, e)
		}
	}
}

type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnEvent(_ context.Context, e Event) {
	fields := []zap.Field{
		zap.String("test_id", e.TestID),
		zap.String("phase", string(e.Phase)),
	}
	switch e.Kind {
	case EventPhaseStarted:
		o.logger.Info("Phase started", fields...)
	case EventPhaseCompleted:
		o.logger.Info("Phase completed", append(fields, zap.String("summary", e.Message))...)
	case EventTurnAppended:
		if e.Turn != nil {
			o.logger.Debug("Turn appended", append(fields,
				zap.Int("turn", e.Turn.TurnNumber),
				zap.String("speaker", string(e.Turn.Speaker)),
				zap.String("type", string(e.Turn.Type)),
				zap.String("persona", e.Turn.PersonaName),
			)...)
		}
	case EventPersonaFailed:
		if e.Failure != nil {
			o.logger.Warn("Persona failed", append(fields,
				zap.String("archetype", e.Failure.ArchetypeRef),
				zap.String("error", e.Failure.Error),
			)...)
		}
	}
}
