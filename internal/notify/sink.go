// Package notify delivers live match events to connected users.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
)

const (
	EventNewMatchRequest = "new-match-request"
	EventMatchAccepted   = "match-accepted"
)

const (
	DefaultRequestMessage = "sent you a match request"
	socketNamespace       = "/"
)

// Sink delivers an event to a single user. Implementations must be safe for
// concurrent use.
type Sink interface {
	Notify(ctx context.Context, target uuid.UUID, event string, payload any) error
}

type MatchRequestEvent struct {
	SenderID   uuid.UUID `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type MatchAcceptedEvent struct {
	UserID    uuid.UUID `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Room is the socket room every connection of a user joins.
func Room(userID uuid.UUID) string {
	return "user_" + userID.String()
}

// LogSink writes events to the log instead of delivering them.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, target uuid.UUID, event string, payload any) error {
	s.logger.Info("Notification", map[string]interface{}{
		"target": target.String(),
		"event":  event,
	})
	return nil
}

// Multi fans an event out to several sinks. The first error is returned after
// every sink has been tried.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, target uuid.UUID, event string, payload any) error {
	var first error
	for _, sink := range m {
		if err := sink.Notify(ctx, target, event, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
