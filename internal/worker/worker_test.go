package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homies-app/backend/internal/auth"
	"github.com/homies-app/backend/internal/events"
	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/queue"
)

type fakeEvents map[int64]*models.EventDetails

func (f fakeEvents) GetEventDetails(_ context.Context, id int64) (*models.EventDetails, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return nil, events.ErrEventNotFound
}

type fakeUsers map[uuid.UUID]*models.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

type fakeMailer struct {
	enabled bool
	err     error
	mu      sync.Mutex
	sent    []string
}

func (m *fakeMailer) Enabled() bool { return m.enabled }

func (m *fakeMailer) Send(_ context.Context, to, subject, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, to+"|"+subject)
	return "id", nil
}

type memLogs struct {
	mu   sync.Mutex
	rows []models.NotificationLog
}

func (l *memLogs) Create(_ context.Context, e *models.NotificationLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = uuid.New()
	l.rows = append(l.rows, *e)
	return nil
}

func (l *memLogs) all() []models.NotificationLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.NotificationLog(nil), l.rows...)
}

type fixture struct {
	organiser *models.User
	helper    *models.User
	events    fakeEvents
	users     fakeUsers
	mailer    *fakeMailer
	logs      *memLogs
}

func newFixture() *fixture {
	organiser := &models.User{ID: uuid.New(), Email: "org@homies.dev", FullName: "Org"}
	helper := &models.User{ID: uuid.New(), Email: "helper@homies.dev", FullName: "Helper"}
	return &fixture{
		organiser: organiser,
		helper:    helper,
		events: fakeEvents{
			1: {ID: 1, Name: "Dog walk", OrganiserID: organiser.ID.String(), Start: time.Now()},
			2: {ID: 2, Name: "Board games", OrganiserID: "external-user", Start: time.Now()},
		},
		users:  fakeUsers{organiser.ID: organiser, helper.ID: helper},
		mailer: &fakeMailer{enabled: true},
		logs:   &memLogs{},
	}
}

func (f *fixture) processor(q JobSource) *ParticipationProcessor {
	p := NewParticipationProcessor(Config{
		Events: f.events,
		Users:  f.users,
		Mailer: f.mailer,
		Logs:   f.logs,
		Queue:  q,
	})
	p.backoff = 10 * time.Millisecond
	return p
}

func participationJob(t *testing.T, eventID int64, userID, action string) *queue.Job {
	t.Helper()
	q := newQueue(t)
	require.NoError(t, q.EnqueueParticipation(context.Background(), queue.ParticipationPayload{EventID: eventID, UserID: userID, Action: action}))
	job, err := q.Dequeue(context.Background(), queue.QueueParticipation, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func newQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return queue.NewQueue(rdb, nil)
}

func TestProcessSendsToOrganiser(t *testing.T) {
	f := newFixture()
	p := f.processor(nil)

	require.NoError(t, p.Process(context.Background(), participationJob(t, 1, f.helper.ID.String(), models.ActionJoined)))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "org@homies.dev|Someone joined Dog walk", f.mailer.sent[0])
	rows := f.logs.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.NotificationStatusSent, rows[0].Status)
	assert.Equal(t, "org@homies.dev", rows[0].RecipientEmail)
	assert.NotNil(t, rows[0].SentAt)
}

func TestProcessIgnoresOrganiserSelfJoin(t *testing.T) {
	f := newFixture()
	p := f.processor(nil)

	require.NoError(t, p.Process(context.Background(), participationJob(t, 1, f.organiser.ID.String(), models.ActionJoined)))
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.logs.all())
}

func TestProcessSkips(t *testing.T) {
	t.Run("organiser without account", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.processor(nil).Process(context.Background(), participationJob(t, 2, "someone", models.ActionLeft)))
		rows := f.logs.all()
		require.Len(t, rows, 1)
		assert.Equal(t, models.NotificationStatusSkipped, rows[0].Status)
		assert.Empty(t, f.mailer.sent)
	})

	t.Run("mailer disabled", func(t *testing.T) {
		f := newFixture()
		f.mailer.enabled = false
		require.NoError(t, f.processor(nil).Process(context.Background(), participationJob(t, 1, f.helper.ID.String(), models.ActionJoined)))
		rows := f.logs.all()
		require.Len(t, rows, 1)
		assert.Equal(t, models.NotificationStatusSkipped, rows[0].Status)
		assert.Equal(t, "mailer disabled", rows[0].ErrorMessage)
	})

	t.Run("event gone", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.processor(nil).Process(context.Background(), participationJob(t, 404, f.helper.ID.String(), models.ActionJoined)))
		assert.Empty(t, f.logs.all())
	})
}

func TestProcessRecordsFailure(t *testing.T) {
	f := newFixture()
	f.mailer.err = errors.New("smtp down")

	err := f.processor(nil).Process(context.Background(), participationJob(t, 1, f.helper.ID.String(), models.ActionJoined))
	require.Error(t, err)
	rows := f.logs.all()
	require.Len(t, rows, 1)
	assert.Equal(t, models.NotificationStatusFailed, rows[0].Status)
	assert.Equal(t, "smtp down", rows[0].ErrorMessage)
}

func TestProcessRejectsUnknownJobType(t *testing.T) {
	f := newFixture()
	err := f.processor(nil).Process(context.Background(), &queue.Job{Type: "other"})
	assert.Error(t, err)
}

func TestRunDrainsQueueAndDeadLettersFailures(t *testing.T) {
	f := newFixture()
	f.mailer.err = errors.New("smtp down")
	q := newQueue(t)
	p := f.processor(q)
	p.pollTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.EnqueueParticipation(ctx, queue.ParticipationPayload{EventID: 1, UserID: f.helper.ID.String(), Action: models.ActionJoined}))

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, err := q.Len(context.Background(), queue.QueueDLQ)
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Len(t, f.logs.all(), queue.MaxRetries)
}
