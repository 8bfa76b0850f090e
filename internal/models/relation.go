package models

import (
	"time"

	"github.com/google/uuid"
)

type RelationStatus string

const (
	RelationStatusPending  RelationStatus = "pending"
	RelationStatusAccepted RelationStatus = "accepted"
	RelationStatusDeclined RelationStatus = "declined"
)

func (s RelationStatus) Valid() bool {
	switch s {
	case RelationStatusPending, RelationStatusAccepted, RelationStatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s RelationStatus) Terminal() bool {
	return s == RelationStatusAccepted || s == RelationStatusDeclined
}

// RelationDirection records which side of the pair sent the request.
type RelationDirection string

const (
	RelationOutgoing RelationDirection = "outgoing"
	RelationIncoming RelationDirection = "incoming"
)

func (d RelationDirection) Opposite() RelationDirection {
	if d == RelationOutgoing {
		return RelationIncoming
	}
	return RelationOutgoing
}

// Relation is one side of a match request. Each pair is stored twice, once
// on each participant's profile.
type Relation struct {
	CounterpartID uuid.UUID         `json:"counterpart_id"`
	Status        RelationStatus    `json:"status"`
	Direction     RelationDirection `json:"direction"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Mirror returns the same relation as seen from the counterpart's side.
func (r Relation) Mirror(ownerID uuid.UUID) Relation {
	return Relation{
		CounterpartID: ownerID,
		Status:        r.Status,
		Direction:     r.Direction.Opposite(),
		CreatedAt:     r.CreatedAt,
	}
}

type RelationWithProfile struct {
	Relation
	Counterpart *PublicProfile `json:"counterpart,omitempty"`
}

// DriftEntry marks a pair whose two sides may disagree. Authority is the side
// whose copy wins during repair.
type DriftEntry struct {
	Op            string         `json:"op"`
	AuthorityID   uuid.UUID      `json:"authority_id"`
	CounterpartID uuid.UUID      `json:"counterpart_id"`
	Status        RelationStatus `json:"status,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	DetectedAt    time.Time      `json:"detected_at"`
}

func (d DriftEntry) Key() string {
	return d.AuthorityID.String() + ":" + d.CounterpartID.String()
}
