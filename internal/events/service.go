package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/homies-app/backend/internal/metrics"
	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/queue"
)

// Service implements event management and ownership rules.
type Service struct {
	store    Store
	notifier Notifier
	live     Broadcaster
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates an event service. notifier may be nil, in which case
// participation changes are not published.
func NewService(store Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// SetBroadcaster enables live updates for join, leave and edit.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.live = b
}

// AddEvent creates an event organised by userID.
func (s *Service) AddEvent(ctx context.Context, form models.EventForm, userID string) (*models.Event, error) {
	e := &models.Event{
		OrganiserID: userID,
		CreatedOn:   s.now().UTC(),
		Version:     1,
	}
	e.Apply(form)
	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	metrics.EventsCreated.Inc()
	s.logger.Info("event created", zap.Int64("event_id", e.ID), zap.String("organiser_id", userID))
	return e, nil
}

// ListEvents returns every event.
func (s *Service) ListEvents(ctx context.Context) ([]models.EventInfo, error) {
	list, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return list, nil
}

// GetEventDetails returns the read model of one event.
func (s *Service) GetEventDetails(ctx context.Context, id int64) (*models.EventDetails, error) {
	d, err := s.store.GetEventDetails(ctx, id)
	if err != nil {
		return nil, wrap("get event details", err)
	}
	return d, nil
}

// GetEventForEdit returns the editable projection of an event.
func (s *Service) GetEventForEdit(ctx context.Context, id int64) (*models.EventForm, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, wrap("get event", err)
	}
	return e.ToForm(), nil
}

// GetEventOrganiserID returns the organiser of an event.
func (s *Service) GetEventOrganiserID(ctx context.Context, id int64) (string, error) {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return "", wrap("get event", err)
	}
	return e.OrganiserID, nil
}

// ListJoinedEvents returns the events userID has joined.
func (s *Service) ListJoinedEvents(ctx context.Context, userID string) ([]models.JoinedEvent, error) {
	list, err := s.store.ListJoinedEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list joined events: %w", err)
	}
	return list, nil
}

// JoinEvent adds userID as a helper of the event.
func (s *Service) JoinEvent(ctx context.Context, eventID int64, userID string) error {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return wrap("get event", err)
	}
	joined, err := s.store.IsParticipant(ctx, eventID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if joined {
		return ErrAlreadyJoined
	}

	at := s.now().UTC()
	added, err := s.store.AddParticipant(ctx, models.EventParticipant{EventID: eventID, HelperID: userID, JoinedAt: at})
	if err != nil {
		return wrap("add participant", err)
	}
	if !added {
		return ErrAlreadyJoined
	}
	s.participationChanged(ctx, eventID, userID, models.ActionJoined, at)
	return nil
}

// LeaveEvent removes userID from the event's helpers.
func (s *Service) LeaveEvent(ctx context.Context, eventID int64, userID string) error {
	removed, err := s.store.RemoveParticipant(ctx, eventID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if !removed {
		return ErrNotJoined
	}
	s.participationChanged(ctx, eventID, userID, models.ActionLeft, s.now().UTC())
	return nil
}

// UpdateEvent overwrites the event's editable fields. Only the organiser may
// update. A non-zero form.Version must match the stored version.
func (s *Service) UpdateEvent(ctx context.Context, id int64, form models.EventForm, userID string) error {
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return wrap("get event", err)
	}
	if e.OrganiserID != userID {
		return ErrNotOrganiser
	}
	if form.Version != 0 && form.Version != e.Version {
		return ErrEditConflict
	}

	expected := e.Version
	e.Apply(form)
	if err := s.store.UpdateEvent(ctx, e, expected); err != nil {
		return wrap("update event", err)
	}
	s.logger.Info("event updated", zap.Int64("event_id", id), zap.Int("version", e.Version))
	if s.live != nil {
		s.live.Broadcast(id, LiveEventUpdated, e.ToForm())
	}
	return nil
}

// ListTypes returns every event type.
func (s *Service) ListTypes(ctx context.Context) ([]models.EventType, error) {
	types, err := s.store.ListTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	return types, nil
}

// CreateType adds an event type.
func (s *Service) CreateType(ctx context.Context, name string) (*models.EventType, error) {
	t, err := s.store.CreateType(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create type: %w", err)
	}
	return t, nil
}

// IsUserJoinedEvent reports whether userID is a helper of the event. Unknown
// events report false.
func (s *Service) IsUserJoinedEvent(ctx context.Context, eventID int64, userID string) (bool, error) {
	ok, err := s.store.IsParticipant(ctx, eventID, userID)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

// ListEventParticipants returns the helpers of an event to its organiser.
func (s *Service) ListEventParticipants(ctx context.Context, eventID int64, userID string) ([]models.EventParticipant, error) {
	organiser, err := s.GetEventOrganiserID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if organiser != userID {
		return nil, ErrNotOrganiser
	}
	list, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return list, nil
}

func (s *Service) participationChanged(ctx context.Context, eventID int64, userID, action string, at time.Time) {
	metrics.ParticipationChanges.WithLabelValues(action).Inc()
	s.logger.Info("participation changed",
		zap.Int64("event_id", eventID),
		zap.String("user_id", userID),
		zap.String("action", action))
	payload := queue.ParticipationPayload{EventID: eventID, UserID: userID, Action: action, At: at}
	if s.live != nil {
		s.live.Broadcast(eventID, LiveParticipation, payload)
	}
	if s.notifier == nil {
		return
	}
	if err := s.notifier.EnqueueParticipation(ctx, payload); err != nil {
		s.logger.Warn("enqueue participation job", zap.Int64("event_id", eventID), zap.Error(err))
	}
}

// wrap returns domain outcomes as-is and annotates everything else.
func wrap(op string, err error) error {
	for _, target := range []error{ErrEventNotFound, ErrEditConflict, ErrAlreadyJoined, ErrNotJoined} {
		if errors.Is(err, target) {
			return target
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
