package events

import (
	"context"

	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/queue"
)

// Store is the persistence the service depends on. GetEvent and
// GetEventDetails return ErrEventNotFound for unknown ids; UpdateEvent returns
// ErrEditConflict when the stored version no longer equals expectedVersion.
type Store interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	GetEventDetails(ctx context.Context, id int64) (*models.EventDetails, error)
	ListEvents(ctx context.Context) ([]models.EventInfo, error)
	UpdateEvent(ctx context.Context, e *models.Event, expectedVersion int) error

	ListTypes(ctx context.Context) ([]models.EventType, error)
	CreateType(ctx context.Context, name string) (*models.EventType, error)

	// AddParticipant reports false when the pair already exists.
	AddParticipant(ctx context.Context, p models.EventParticipant) (bool, error)
	// RemoveParticipant reports false when there was nothing to remove.
	RemoveParticipant(ctx context.Context, eventID int64, helperID string) (bool, error)
	IsParticipant(ctx context.Context, eventID int64, helperID string) (bool, error)
	ListParticipants(ctx context.Context, eventID int64) ([]models.EventParticipant, error)
	ListJoinedEvents(ctx context.Context, helperID string) ([]models.JoinedEvent, error)
}

// Notifier publishes participation changes for the notification worker.
type Notifier interface {
	EnqueueParticipation(ctx context.Context, payload queue.ParticipationPayload) error
}

// Broadcaster pushes live updates to clients watching an event.
type Broadcaster interface {
	Broadcast(eventID int64, kind string, payload any)
}

// Live update kinds.
const (
	LiveParticipation = "participation"
	LiveEventUpdated  = "event_updated"
)
