package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/queue"
)

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []queue.ParticipationPayload
	err  error
}

func (n *recordingNotifier) EnqueueParticipation(_ context.Context, p queue.ParticipationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, p)
	return n.err
}

type liveRecorder struct {
	kinds    []string
	payloads []any
}

func (l *liveRecorder) Broadcast(eventID int64, kind string, payload any) {
	l.kinds = append(l.kinds, kind)
	l.payloads = append(l.payloads, payload)
}

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewService(store, nil, nil), store
}

func testForm(name string) models.EventForm {
	start := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	return models.EventForm{
		Name:        name,
		Description: "Test Description",
		Start:       start,
		End:         start.Add(2 * time.Hour),
		TypeID:      2,
	}
}

func seedJoinedEvent(t *testing.T, store *MemoryStore, userID string) (models.Event, models.EventType) {
	t.Helper()
	ctx := context.Background()
	typ, err := store.CreateType(ctx, "Test Name")
	require.NoError(t, err)

	start := time.Now().UTC()
	e := &models.Event{
		Name:        "Test Event",
		Description: "Test Description",
		Start:       start,
		End:         start.Add(2 * time.Hour),
		TypeID:      typ.ID,
		OrganiserID: userID,
	}
	require.NoError(t, store.CreateEvent(ctx, e))
	added, err := store.AddParticipant(ctx, models.EventParticipant{EventID: e.ID, HelperID: userID, JoinedAt: start})
	require.NoError(t, err)
	require.True(t, added)
	return *e, *typ
}

func TestAddEventPersistsForm(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	form := testForm("Test Event")

	created, err := svc.AddEvent(ctx, form, "testUserId")
	require.NoError(t, err)

	got, err := store.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, form.Name, got.Name)
	assert.Equal(t, form.Description, got.Description)
	assert.True(t, form.Start.Equal(got.Start))
	assert.True(t, form.End.Equal(got.End))
	assert.Equal(t, "testUserId", got.OrganiserID)
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.CreatedOn.IsZero())
}

func TestListEventsReturnsEveryEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddEvent(ctx, testForm("Test Event"), "testUserIdOne")
	require.NoError(t, err)
	second := testForm("Test Event Two")
	second.Start = second.Start.AddDate(0, 0, 2)
	_, err = svc.AddEvent(ctx, second, "testUserIdTwo")
	require.NoError(t, err)

	list, err := svc.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "Test Event", list[0].Name)
	assert.Equal(t, "testUserIdOne", list[0].Organiser)
}

func TestListEventsUsesOrganiserDisplayName(t *testing.T) {
	svc, store := newTestService(t)
	store.SetUserName("u1", "Maria Petrova")

	_, err := svc.AddEvent(context.Background(), testForm("Test Event"), "u1")
	require.NoError(t, err)

	list, err := svc.ListEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Maria Petrova", list[0].Organiser)
}

func TestGetEventDetails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	form := testForm("Test Event")

	created, err := svc.AddEvent(ctx, form, "nonExistingUserId")
	require.NoError(t, err)

	d, err := svc.GetEventDetails(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, form.Name, d.Name)
	assert.Equal(t, form.Description, d.Description)
	assert.Equal(t, "nonExistingUserId", d.OrganiserID)

	_, err = svc.GetEventDetails(ctx, created.ID+1)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestGetEventForEdit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	form := testForm("Test Event")
	form.Description = "Demo Description"

	created, err := svc.AddEvent(ctx, form, "nonExistingUser")
	require.NoError(t, err)

	got, err := svc.GetEventForEdit(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, form.Name, got.Name)
	assert.Equal(t, form.Description, got.Description)
	assert.True(t, form.Start.Equal(got.Start))
	assert.True(t, form.End.Equal(got.End))
	assert.Equal(t, form.TypeID, got.TypeID)
	assert.Equal(t, 1, got.Version)
}

func TestGetEventForEditMissing(t *testing.T) {
	svc, _ := newTestService(t)

	got, err := svc.GetEventForEdit(context.Background(), 90)
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Nil(t, got)
}

func TestGetEventOrganiserID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.AddEvent(ctx, testForm("Test Event"), "userID")
	require.NoError(t, err)

	id, err := svc.GetEventOrganiserID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "userID", id)

	_, err = svc.GetEventOrganiserID(ctx, 99)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestListJoinedEvents(t *testing.T) {
	svc, store := newTestService(t)
	e, typ := seedJoinedEvent(t, store, "userId")

	list, err := svc.ListJoinedEvents(context.Background(), "userId")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
	assert.Equal(t, e.Name, list[0].Name)
	assert.Equal(t, typ.Name, list[0].Type)

	other, err := svc.ListJoinedEvents(context.Background(), "someoneElse")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestJoinEvent(t *testing.T) {
	t.Run("missing event", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.JoinEvent(context.Background(), 99, "")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("already joined", func(t *testing.T) {
		svc, store := newTestService(t)
		e, _ := seedJoinedEvent(t, store, "userId")
		err := svc.JoinEvent(context.Background(), e.ID, "userId")
		assert.ErrorIs(t, err, ErrAlreadyJoined)
	})

	t.Run("joins", func(t *testing.T) {
		svc, store := newTestService(t)
		ctx := context.Background()
		created, err := svc.AddEvent(ctx, testForm("Test Event"), "organiser")
		require.NoError(t, err)

		require.NoError(t, svc.JoinEvent(ctx, created.ID, "helper"))
		ok, err := store.IsParticipant(ctx, created.ID, "helper")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestJoinEventConcurrentCallsAddOneRow(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	created, err := svc.AddEvent(ctx, testForm("Test Event"), "organiser")
	require.NoError(t, err)

	const callers = 20
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.JoinEvent(ctx, created.ID, "helper")
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyJoined):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, dup)

	list, err := store.ListParticipants(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLeaveEvent(t *testing.T) {
	t.Run("not joined", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.LeaveEvent(context.Background(), 1, "userId")
		assert.ErrorIs(t, err, ErrNotJoined)
	})

	t.Run("leaves", func(t *testing.T) {
		svc, store := newTestService(t)
		ctx := context.Background()
		e, _ := seedJoinedEvent(t, store, "userId")

		require.NoError(t, svc.LeaveEvent(ctx, e.ID, "userId"))
		ok, err := store.IsParticipant(ctx, e.ID, "userId")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, svc.LeaveEvent(ctx, e.ID, "userId"), ErrNotJoined)
	})
}

func TestUpdateEvent(t *testing.T) {
	t.Run("missing event", func(t *testing.T) {
		svc, _ := newTestService(t)
		err := svc.UpdateEvent(context.Background(), 99, testForm("Edited"), "userId")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("not organiser", func(t *testing.T) {
		svc, store := newTestService(t)
		ctx := context.Background()
		created, err := svc.AddEvent(ctx, testForm("Test Event"), "owner")
		require.NoError(t, err)

		err = svc.UpdateEvent(ctx, created.ID, testForm("Edited Event"), "intruder")
		assert.ErrorIs(t, err, ErrNotOrganiser)

		got, err := store.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Test Event", got.Name)
	})

	t.Run("organiser edits", func(t *testing.T) {
		svc, store := newTestService(t)
		ctx := context.Background()
		created, err := svc.AddEvent(ctx, testForm("Test Event"), "owner")
		require.NoError(t, err)

		edit := testForm("Edited Event")
		edit.Description = "Edited Description"
		edit.TypeID = 3
		require.NoError(t, svc.UpdateEvent(ctx, created.ID, edit, "owner"))

		got, err := store.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Edited Event", got.Name)
		assert.Equal(t, "Edited Description", got.Description)
		assert.Equal(t, 3, got.TypeID)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "owner", got.OrganiserID)
	})

	t.Run("stale version", func(t *testing.T) {
		svc, _ := newTestService(t)
		ctx := context.Background()
		created, err := svc.AddEvent(ctx, testForm("Test Event"), "owner")
		require.NoError(t, err)

		first := testForm("First Edit")
		first.Version = 1
		require.NoError(t, svc.UpdateEvent(ctx, created.ID, first, "owner"))

		second := testForm("Second Edit")
		second.Version = 1
		assert.ErrorIs(t, svc.UpdateEvent(ctx, created.ID, second, "owner"), ErrEditConflict)
	})
}

func TestIsUserJoinedEvent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	ok, err := svc.IsUserJoinedEvent(ctx, 99, "userId")
	require.NoError(t, err)
	assert.False(t, ok)

	e, _ := seedJoinedEvent(t, store, "userId")

	ok, err = svc.IsUserJoinedEvent(ctx, e.ID, "stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsUserJoinedEvent(ctx, e.ID, "userId")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListTypesAndCreateType(t *testing.T) {
	store := NewMemoryStore("Animals", "Fun")
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	created, err := svc.CreateType(ctx, "Work")
	require.NoError(t, err)
	assert.Equal(t, 3, created.ID)

	_, err = svc.CreateType(ctx, "Fun")
	assert.ErrorIs(t, err, ErrDuplicateType)

	// Names are unique as written, like the event_types.name constraint.
	lower, err := svc.CreateType(ctx, "fun")
	require.NoError(t, err)
	assert.Equal(t, 4, lower.ID)

	types, err := svc.ListTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, 4)
	assert.Equal(t, "Animals", types[0].Name)
	assert.Equal(t, "Work", types[2].Name)
}

func TestListEventParticipants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, err := svc.AddEvent(ctx, testForm("Test Event"), "owner")
	require.NoError(t, err)
	require.NoError(t, svc.JoinEvent(ctx, created.ID, "helper"))

	list, err := svc.ListEventParticipants(ctx, created.ID, "owner")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "helper", list[0].HelperID)

	_, err = svc.ListEventParticipants(ctx, created.ID, "helper")
	assert.ErrorIs(t, err, ErrNotOrganiser)

	_, err = svc.ListEventParticipants(ctx, 42, "owner")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestParticipationChangesArePublished(t *testing.T) {
	store := NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, nil)
	ctx := context.Background()

	created, err := svc.AddEvent(ctx, testForm("Test Event"), "owner")
	require.NoError(t, err)
	require.NoError(t, svc.JoinEvent(ctx, created.ID, "helper"))
	require.NoError(t, svc.LeaveEvent(ctx, created.ID, "helper"))
	assert.ErrorIs(t, svc.LeaveEvent(ctx, created.ID, "helper"), ErrNotJoined)

	require.Len(t, notifier.jobs, 2)
	assert.Equal(t, models.ActionJoined, notifier.jobs[0].Action)
	assert.Equal(t, models.ActionLeft, notifier.jobs[1].Action)
	assert.Equal(t, created.ID, notifier.jobs[0].EventID)
	assert.Equal(t, "helper", notifier.jobs[1].UserID)
}

func TestLiveUpdatesBroadcast(t *testing.T) {
	svc, _ := newTestService(t)
	live := &liveRecorder{}
	svc.SetBroadcaster(live)
	ctx := context.Background()

	created, err := svc.AddEvent(ctx, testForm("Test Event"), "owner")
	require.NoError(t, err)
	require.NoError(t, svc.JoinEvent(ctx, created.ID, "helper"))
	require.NoError(t, svc.UpdateEvent(ctx, created.ID, testForm("Renamed"), "owner"))
	assert.ErrorIs(t, svc.UpdateEvent(ctx, created.ID, testForm("Hijacked"), "helper"), ErrNotOrganiser)

	assert.Equal(t, []string{LiveParticipation, LiveEventUpdated}, live.kinds)
	joined, ok := live.payloads[0].(queue.ParticipationPayload)
	require.True(t, ok)
	assert.Equal(t, "helper", joined.UserID)
	form, ok := live.payloads[1].(*models.EventForm)
	require.True(t, ok)
	assert.Equal(t, "Renamed", form.Name)
	assert.Equal(t, 2, form.Version)
}

func TestPublishFailureDoesNotFailJoin(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, &recordingNotifier{err: errors.New("redis down")}, nil)
	ctx := context.Background()

	created, err := svc.AddEvent(ctx, testForm("Test Event"), "owner")
	require.NoError(t, err)
	assert.NoError(t, svc.JoinEvent(ctx, created.ID, "helper"))
}

func TestMemoryStoreUpdateRejectsStaleVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	e := &models.Event{Name: "Test Event", OrganiserID: "owner"}
	require.NoError(t, store.CreateEvent(ctx, e))

	e.Name = "Edited"
	require.NoError(t, store.UpdateEvent(ctx, e, 1))
	assert.Equal(t, 2, e.Version)

	e.Name = "Edited Again"
	assert.ErrorIs(t, store.UpdateEvent(ctx, e, 1), ErrEditConflict)
}
