package events

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homies-app/backend/internal/models"
	"github.com/homies-app/backend/pkg/database"
)

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Organiser display name: users.full_name when the organiser id is a known
// user, otherwise the raw id.
const organiserName = `COALESCE(NULLIF(u.full_name, ''), e.organiser_id)`

// CreateEvent inserts a new event and fills in its id.
func (r *Repository) CreateEvent(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (name, description, organiser_id, created_on, start_at, end_at, type_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
		RETURNING id, version`
	err := r.pool.QueryRow(ctx, q, e.Name, e.Description, e.OrganiserID, e.CreatedOn, e.Start, e.End, e.TypeID).
		Scan(&e.ID, &e.Version)
	if database.IsForeignKeyViolation(err) {
		return ErrUnknownType
	}
	return err
}

// GetEvent returns an event by id.
func (r *Repository) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	const q = `SELECT id, name, description, start_at, end_at, type_id, organiser_id, created_on, version
		FROM events WHERE id = $1`
	var e models.Event
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&e.ID, &e.Name, &e.Description, &e.Start, &e.End, &e.TypeID, &e.OrganiserID, &e.CreatedOn, &e.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEventDetails returns an event with its type and organiser names resolved.
func (r *Repository) GetEventDetails(ctx context.Context, id int64) (*models.EventDetails, error) {
	q := `SELECT e.id, e.name, e.description, e.start_at, e.end_at, e.type_id, t.name,
			e.organiser_id, ` + organiserName + `, e.created_on
		FROM events e
		JOIN event_types t ON t.id = e.type_id
		LEFT JOIN users u ON u.id::text = e.organiser_id
		WHERE e.id = $1`
	var d models.EventDetails
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&d.ID, &d.Name, &d.Description, &d.Start, &d.End, &d.TypeID, &d.Type, &d.OrganiserID, &d.Organiser, &d.CreatedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListEvents returns all events ordered by start time.
func (r *Repository) ListEvents(ctx context.Context) ([]models.EventInfo, error) {
	q := `SELECT e.id, e.name, e.start_at, t.name, ` + organiserName + `
		FROM events e
		JOIN event_types t ON t.id = e.type_id
		LEFT JOIN users u ON u.id::text = e.organiser_id
		ORDER BY e.start_at, e.id`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.EventInfo{}
	for rows.Next() {
		var i models.EventInfo
		if err := rows.Scan(&i.ID, &i.Name, &i.Start, &i.Type, &i.Organiser); err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return list, rows.Err()
}

// UpdateEvent writes the editable fields if the row is still at
// expectedVersion, and bumps the version.
func (r *Repository) UpdateEvent(ctx context.Context, e *models.Event, expectedVersion int) error {
	const q = `UPDATE events
		SET name = $1, description = $2, start_at = $3, end_at = $4, type_id = $5, version = version + 1
		WHERE id = $6 AND version = $7
		RETURNING version`
	err := r.pool.QueryRow(ctx, q, e.Name, e.Description, e.Start, e.End, e.TypeID, e.ID, expectedVersion).Scan(&e.Version)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrEditConflict
	case database.IsForeignKeyViolation(err):
		return ErrUnknownType
	}
	return err
}

// ListTypes returns every event type ordered by id.
func (r *Repository) ListTypes(ctx context.Context) ([]models.EventType, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM event_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.EventType{}
	for rows.Next() {
		var t models.EventType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// CreateType inserts an event type.
func (r *Repository) CreateType(ctx context.Context, name string) (*models.EventType, error) {
	t := models.EventType{Name: name}
	err := r.pool.QueryRow(ctx, `INSERT INTO event_types (name) VALUES ($1) RETURNING id`, name).Scan(&t.ID)
	if database.IsUniqueViolation(err) {
		return nil, ErrDuplicateType
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AddParticipant inserts the pair, reporting false if it already existed.
func (r *Repository) AddParticipant(ctx context.Context, p models.EventParticipant) (bool, error) {
	const q = `INSERT INTO event_participants (event_id, helper_id, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (event_id, helper_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, p.EventID, p.HelperID, p.JoinedAt)
	if database.IsForeignKeyViolation(err) {
		return false, ErrEventNotFound
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveParticipant deletes the pair, reporting false if it did not exist.
func (r *Repository) RemoveParticipant(ctx context.Context, eventID int64, helperID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM event_participants WHERE event_id = $1 AND helper_id = $2`, eventID, helperID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IsParticipant reports whether the pair exists.
func (r *Repository) IsParticipant(ctx context.Context, eventID int64, helperID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM event_participants WHERE event_id = $1 AND helper_id = $2)`
	var ok bool
	err := r.pool.QueryRow(ctx, q, eventID, helperID).Scan(&ok)
	return ok, err
}

// ListParticipants returns an event's helpers in join order.
func (r *Repository) ListParticipants(ctx context.Context, eventID int64) ([]models.EventParticipant, error) {
	const q = `SELECT event_id, helper_id, joined_at FROM event_participants
		WHERE event_id = $1 ORDER BY joined_at, helper_id`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.EventParticipant{}
	for rows.Next() {
		var p models.EventParticipant
		if err := rows.Scan(&p.EventID, &p.HelperID, &p.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// ListJoinedEvents returns the events a helper has joined.
func (r *Repository) ListJoinedEvents(ctx context.Context, helperID string) ([]models.JoinedEvent, error) {
	const q = `SELECT e.id, e.name, e.start_at, t.name
		FROM event_participants p
		JOIN events e ON e.id = p.event_id
		JOIN event_types t ON t.id = e.type_id
		WHERE p.helper_id = $1
		ORDER BY e.start_at, e.id`
	rows, err := r.pool.Query(ctx, q, helperID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.JoinedEvent{}
	for rows.Next() {
		var j models.JoinedEvent
		if err := rows.Scan(&j.ID, &j.Name, &j.Start, &j.Type); err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}
