package domain

import (
	"strings"
	"time"
)

// ChangeOperation describes a persisted activity operation.
type ChangeOperation string

// ChangeOperation values used by the local activity ledger.
const (
	ChangeOperationCreate      ChangeOperation = "create"
	ChangeOperationUpdate      ChangeOperation = "update"
	ChangeOperationMove        ChangeOperation = "move"
	ChangeOperationArchive     ChangeOperation = "archive"
	ChangeOperationRestore     ChangeOperation = "restore"
	ChangeOperationDelete      ChangeOperation = "delete"
	ChangeOperationRenormalize ChangeOperation = "renormalize"
)

// EntityType names the kind of record a change event refers to.
type EntityType string

// EntityType values.
const (
	EntityTypeBoard EntityType = "board"
	EntityTypeList  EntityType = "list"
	EntityTypeCard  EntityType = "card"
)

// NormalizeEntityType canonicalizes an entity type value.
func NormalizeEntityType(raw EntityType) (EntityType, error) {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(string(raw)))); t {
	case EntityTypeBoard, EntityTypeList, EntityTypeCard:
		return t, nil
	default:
		return "", ErrInvalidEntityType
	}
}

// ChangeEvent is a single activity-log entry for a board.
type ChangeEvent struct {
	ID         int64
	BoardID    string
	EntityType EntityType
	EntityID   string
	Operation  ChangeOperation
	ActorID    string
	Metadata   map[string]string
	OccurredAt time.Time
}
