package app

import (
	"context"
	"time"

	"github.com/hylla/slate/internal/domain"
	"github.com/hylla/slate/internal/ordering"
)

// Repository represents the persistence port used by the service.
type Repository interface {
	CreateBoard(context.Context, domain.Board) error
	UpdateBoard(context.Context, domain.Board) error
	GetBoard(context.Context, string) (domain.Board, error)
	ListBoards(context.Context, bool) ([]domain.Board, error)

	CreateList(context.Context, domain.List) error
	UpdateList(context.Context, domain.List) error
	GetList(context.Context, string) (domain.List, error)
	ListLists(context.Context, string, bool) ([]domain.List, error)

	CreateCard(context.Context, domain.Card) error
	UpdateCard(context.Context, domain.Card) error
	GetCard(context.Context, string) (domain.Card, error)
	ListCards(context.Context, string, bool) ([]domain.Card, error)
	DeleteCard(context.Context, string) error

	ListOrder(context.Context, string) (OrderSnapshot, error)
	CardOrder(context.Context, string) (OrderSnapshot, error)
	CommitListMove(context.Context, ListMove) error
	CommitCardMove(context.Context, CardMove) error
	CommitRenormalize(context.Context, Renormalization) error

	ListBoardChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}

// OrderSnapshot is a consistent read of one container's active children.
// Version changes whenever membership or any child position changes.
type OrderSnapshot struct {
	ContainerID string
	Version     int64
	Items       []ordering.PositionedEntity
}

// ListMove is one list position write guarded by board list-order versions.
type ListMove struct {
	ListID      string
	FromBoardID string
	ToBoardID   string
	Position    float64
	// FromVersion and ToVersion are the expected board versions; equal boards use FromVersion.
	FromVersion int64
	ToVersion   int64
	ActorID     string
	MovedAt     time.Time
}

// CardMove is one card position write guarded by list card-order versions.
type CardMove struct {
	CardID      string
	FromListID  string
	ToListID    string
	Position    float64
	FromVersion int64
	ToVersion   int64
	ActorID     string
	MovedAt     time.Time
}

// Renormalization rewrites every position in one container.
type Renormalization struct {
	EntityType      domain.EntityType
	BoardID         string
	ContainerID     string
	ExpectedVersion int64
	Items           []ordering.PositionedEntity
	ActorID         string
	At              time.Time
}

// EventSink receives committed change events.
type EventSink interface {
	PublishChange(context.Context, domain.ChangeEvent)
}

// SchemaSink receives assembled schema documents after a rebuild.
type SchemaSink interface {
	PublishSchema(context.Context, SchemaUpdated) error
}
