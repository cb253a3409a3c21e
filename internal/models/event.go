package models

import "time"

// Event is a community event organised by a single user.
type Event struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TypeID      int       `json:"type_id"`
	OrganiserID string    `json:"organiser_id"`
	CreatedOn   time.Time `json:"created_on"`
	Version     int       `json:"version"`
}

// EventType is a lookup category for events.
type EventType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// EventParticipant links one helper to one event.
type EventParticipant struct {
	EventID  int64     `json:"event_id"`
	HelperID string    `json:"helper_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// EventForm is the editable shape of an event. Version is optional on input;
// when non-zero it must match the stored version.
type EventForm struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TypeID      int       `json:"type_id"`
	Version     int       `json:"version,omitempty"`
}

// EventInfo is one row of the all-events listing.
type EventInfo struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Start     time.Time `json:"start"`
	Type      string    `json:"type"`
	Organiser string    `json:"organiser"`
}

// EventDetails is the full read model of a single event.
type EventDetails struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TypeID      int       `json:"type_id"`
	Type        string    `json:"type"`
	OrganiserID string    `json:"organiser_id"`
	Organiser   string    `json:"organiser"`
	CreatedOn   time.Time `json:"created_on"`
}

// JoinedEvent summarises an event a user has joined.
type JoinedEvent struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	Type  string    `json:"type"`
}

// ToForm projects the event into its edit form.
func (e *Event) ToForm() *EventForm {
	return &EventForm{
		Name:        e.Name,
		Description: e.Description,
		Start:       e.Start,
		End:         e.End,
		TypeID:      e.TypeID,
		Version:     e.Version,
	}
}

// Apply overwrites the mutable fields from the form.
func (e *Event) Apply(f EventForm) {
	e.Name = f.Name
	e.Description = f.Description
	e.Start = f.Start
	e.End = f.End
	e.TypeID = f.TypeID
}
