package store

import (
	"time"

	"atelier/api/internal/blueprint"
)

type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

// Workshop is the shared editing session: one blueprint, its version
// history, and a stakeholder set.
type Workshop struct {
	ID        string
	OwnerID   string
	ShareID   string
	Name      string
	// CurrentContent is nil until the first blueprint lands.
	CurrentContent *blueprint.Blueprint
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StakeholderStatus values; exactly one of these at all times.
const (
	StatusPending = "pending"
	StatusYes     = "yes"
	StatusNo      = "no"
)

type Stakeholder struct {
	ID         string
	WorkshopID string
	Role       string
	Email      string
	Status     string
	Comment    string
	CreatedAt  time.Time
}

// BlueprintVersion is an immutable snapshot. SequenceNumber is assigned by
// the database at insert time and is gapless per workshop, starting at 1.
type BlueprintVersion struct {
	WorkshopID     string
	SequenceNumber int64
	Content        blueprint.Blueprint
	CreatedAt      time.Time
}

// VersionMeta is the listing row for the history sidebar; content is
// omitted so listing stays cheap.
type VersionMeta struct {
	SequenceNumber int64
	Title          string
	CreatedAt      time.Time
}

// ShareLink carries the optional passcode protection and bookkeeping for a
// workshop's share token. A workshop without a row here is shared bare.
type ShareLink struct {
	WorkshopID   string
	PasscodeHash string
	AccessCount  int
	RevokedAt    *time.Time
}
