// Package common provides transport-agnostic server contracts used by HTTP, MCP, and live-feed adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a concurrent modification that the caller may retry.
var ErrConflict = errors.New("conflict")

// ErrUnavailable reports a surface with no backing service.
var ErrUnavailable = errors.New("surface unavailable")

// Board is the transport shape of one board.
type Board struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// List is the transport shape of one list.
type List struct {
	ID         string     `json:"id"`
	BoardID    string     `json:"board_id"`
	Name       string     `json:"name"`
	WIPLimit   int        `json:"wip_limit"`
	Position   float64    `json:"position"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Card is the transport shape of one card.
type Card struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"board_id"`
	ListID      string     `json:"list_id"`
	Position    float64    `json:"position"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// ListDetail is one list with its ordered cards.
type ListDetail struct {
	List
	Cards []Card `json:"cards"`
}

// BoardDetail is one board with ordered lists and cards.
type BoardDetail struct {
	Board Board        `json:"board"`
	Lists []ListDetail `json:"lists"`
}

// ChangeEvent is the transport shape of one board activity record.
type ChangeEvent struct {
	ID         int64             `json:"id"`
	BoardID    string            `json:"board_id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// OmittedField reports one declared field the schema compiler left out.
type OmittedField struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Schema is the current query-protocol type document.
type Schema struct {
	Hash    string         `json:"hash"`
	Text    string         `json:"text"`
	Omitted []OmittedField `json:"omitted,omitempty"`
}

// CreateBoardRequest captures input for a new board.
type CreateBoardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateListRequest captures input for a new list appended to a board.
type CreateListRequest struct {
	BoardID  string `json:"-"`
	Name     string `json:"name"`
	WIPLimit int    `json:"wip_limit,omitempty"`
	ActorID  string `json:"actor_id,omitempty"`
}

// CreateCardRequest captures input for a new card appended to a list.
type CreateCardRequest struct {
	ListID      string     `json:"-"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	ActorID     string     `json:"actor_id,omitempty"`
}

// MoveListRequest captures one drag-and-drop of a list.
type MoveListRequest struct {
	ListID        string `json:"-"`
	FromIndex     *int   `json:"from_index,omitempty"`
	ToIndex       *int   `json:"to_index"`
	TargetBoardID string `json:"target_board_id,omitempty"`
	ActorID       string `json:"actor_id,omitempty"`
}

// MoveCardRequest captures one drag-and-drop of a card.
type MoveCardRequest struct {
	CardID       string `json:"-"`
	FromIndex    *int   `json:"from_index,omitempty"`
	ToIndex      *int   `json:"to_index"`
	TargetListID string `json:"target_list_id,omitempty"`
	ActorID      string `json:"actor_id,omitempty"`
}

// UpdateBoardRequest captures a partial board edit; nil fields keep their value.
type UpdateBoardRequest struct {
	BoardID     string  `json:"-"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// RenameListRequest captures a list rename.
type RenameListRequest struct {
	ListID string `json:"-"`
	Name   string `json:"name"`
}

// UpdateCardRequest captures a partial card edit; nil fields keep their value.
type UpdateCardRequest struct {
	CardID      string     `json:"-"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ClearDue    bool       `json:"clear_due,omitempty"`
	Labels      *[]string  `json:"labels,omitempty"`
}

// DeleteCardRequest captures a card removal. An empty mode uses the configured default.
type DeleteCardRequest struct {
	CardID string `json:"-"`
	Mode   string `json:"mode,omitempty"`
}

// BoardService captures board, list, and card operations exposed by transports.
type BoardService interface {
	ListBoards(context.Context, bool) ([]Board, error)
	CreateBoard(context.Context, CreateBoardRequest) (Board, error)
	GetBoard(context.Context, string, bool) (BoardDetail, error)
	CreateList(context.Context, CreateListRequest) (List, error)
	CreateCard(context.Context, CreateCardRequest) (Card, error)
	ListChangeEvents(context.Context, string, int) ([]ChangeEvent, error)
}

// MoveService captures reorder operations.
type MoveService interface {
	MoveList(context.Context, MoveListRequest) (List, error)
	MoveCard(context.Context, MoveCardRequest) (Card, error)
}

// EditService captures detail edits, archival, and deletion.
type EditService interface {
	UpdateBoard(context.Context, UpdateBoardRequest) (Board, error)
	ArchiveBoard(context.Context, string) (Board, error)
	RestoreBoard(context.Context, string) (Board, error)
	RenameList(context.Context, RenameListRequest) (List, error)
	ArchiveList(context.Context, string) (List, error)
	GetCard(context.Context, string) (Card, error)
	UpdateCard(context.Context, UpdateCardRequest) (Card, error)
	DeleteCard(context.Context, DeleteCardRequest) error
	RestoreCard(context.Context, string) (Card, error)
}

// SchemaReader returns the live schema document.
type SchemaReader interface {
	Schema(context.Context) (Schema, error)
}

// Service is the full surface consumed by the HTTP and MCP adapters.
type Service interface {
	BoardService
	EditService
	MoveService
	SchemaReader
}
