package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/domain"
	"github.com/hylla/slate/internal/ordering"
)

// defaultEventLimit bounds change-event reads when callers pass no limit.
const defaultEventLimit = 50

// AppServiceAdapter maps transport contracts onto app.Service and the schema registry.
type AppServiceAdapter struct {
	service *app.Service
	schema  *app.SchemaRegistry
}

var _ Service = (*AppServiceAdapter)(nil)

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service, registry *app.SchemaRegistry) *AppServiceAdapter {
	return &AppServiceAdapter{service: service, schema: registry}
}

// ListBoards lists boards ordered by creation time.
func (a *AppServiceAdapter) ListBoards(ctx context.Context, includeArchived bool) ([]Board, error) {
	if err := a.requireService(); err != nil {
		return nil, err
	}
	boards, err := a.service.ListBoards(ctx, includeArchived)
	if err != nil {
		return nil, mapAppError("list boards", err)
	}
	out := make([]Board, 0, len(boards))
	for _, board := range boards {
		out = append(out, mapBoard(board))
	}
	return out, nil
}

// CreateBoard creates one board and its default lists.
func (a *AppServiceAdapter) CreateBoard(ctx context.Context, in CreateBoardRequest) (Board, error) {
	if err := a.requireService(); err != nil {
		return Board{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return Board{}, fmt.Errorf("name is required: %w", ErrInvalidRequest)
	}
	board, err := a.service.CreateBoard(ctx, app.CreateBoardInput{
		Name:        in.Name,
		Description: in.Description,
	})
	if err != nil {
		return Board{}, mapAppError("create board", err)
	}
	return mapBoard(board), nil
}

// GetBoard returns one board with its lists and cards in display order.
func (a *AppServiceAdapter) GetBoard(ctx context.Context, boardID string, includeArchived bool) (BoardDetail, error) {
	if err := a.requireService(); err != nil {
		return BoardDetail{}, err
	}
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return BoardDetail{}, fmt.Errorf("board_id is required: %w", ErrInvalidRequest)
	}
	view, err := a.service.GetBoardView(ctx, boardID, includeArchived)
	if err != nil {
		return BoardDetail{}, mapAppError("get board", err)
	}
	out := BoardDetail{
		Board: mapBoard(view.Board),
		Lists: make([]ListDetail, 0, len(view.Lists)),
	}
	for _, lv := range view.Lists {
		detail := ListDetail{List: mapList(lv.List), Cards: make([]Card, 0, len(lv.Cards))}
		for _, card := range lv.Cards {
			detail.Cards = append(detail.Cards, mapCard(card))
		}
		out.Lists = append(out.Lists, detail)
	}
	return out, nil
}

// CreateList appends one list to a board.
func (a *AppServiceAdapter) CreateList(ctx context.Context, in CreateListRequest) (List, error) {
	if err := a.requireService(); err != nil {
		return List{}, err
	}
	list, err := a.service.CreateList(ctx, app.CreateListInput{
		BoardID:  in.BoardID,
		Name:     in.Name,
		WIPLimit: in.WIPLimit,
		ActorID:  in.ActorID,
	})
	if err != nil {
		return List{}, mapAppError("create list", err)
	}
	return mapList(list), nil
}

// CreateCard appends one card to a list.
func (a *AppServiceAdapter) CreateCard(ctx context.Context, in CreateCardRequest) (Card, error) {
	if err := a.requireService(); err != nil {
		return Card{}, err
	}
	card, err := a.service.CreateCard(ctx, app.CreateCardInput{
		ListID:      in.ListID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    domain.Priority(strings.ToLower(strings.TrimSpace(in.Priority))),
		DueAt:       in.DueAt,
		Labels:      in.Labels,
		ActorID:     in.ActorID,
	})
	if err != nil {
		return Card{}, mapAppError("create card", err)
	}
	return mapCard(card), nil
}

// ListChangeEvents returns recent board activity, newest first.
func (a *AppServiceAdapter) ListChangeEvents(ctx context.Context, boardID string, limit int) ([]ChangeEvent, error) {
	if err := a.requireService(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	events, err := a.service.ListBoardChangeEvents(ctx, boardID, limit)
	if err != nil {
		return nil, mapAppError("list change events", err)
	}
	out := make([]ChangeEvent, 0, len(events))
	for _, event := range events {
		out = append(out, MapChangeEvent(event))
	}
	return out, nil
}

// UpdateBoard applies a partial board edit.
func (a *AppServiceAdapter) UpdateBoard(ctx context.Context, in UpdateBoardRequest) (Board, error) {
	if err := a.requireService(); err != nil {
		return Board{}, err
	}
	if in.Name == nil && in.Description == nil {
		return Board{}, fmt.Errorf("no board fields to update: %w", ErrInvalidRequest)
	}
	current, err := a.service.GetBoard(ctx, in.BoardID)
	if err != nil {
		return Board{}, mapAppError("update board", err)
	}
	update := app.UpdateBoardInput{BoardID: current.ID, Name: current.Name, Description: current.Description}
	if in.Name != nil {
		update.Name = *in.Name
	}
	if in.Description != nil {
		update.Description = *in.Description
	}
	board, err := a.service.UpdateBoard(ctx, update)
	if err != nil {
		return Board{}, mapAppError("update board", err)
	}
	return mapBoard(board), nil
}

// ArchiveBoard archives one board.
func (a *AppServiceAdapter) ArchiveBoard(ctx context.Context, boardID string) (Board, error) {
	if err := a.requireService(); err != nil {
		return Board{}, err
	}
	board, err := a.service.ArchiveBoard(ctx, boardID)
	if err != nil {
		return Board{}, mapAppError("archive board", err)
	}
	return mapBoard(board), nil
}

// RestoreBoard restores one archived board.
func (a *AppServiceAdapter) RestoreBoard(ctx context.Context, boardID string) (Board, error) {
	if err := a.requireService(); err != nil {
		return Board{}, err
	}
	board, err := a.service.RestoreBoard(ctx, boardID)
	if err != nil {
		return Board{}, mapAppError("restore board", err)
	}
	return mapBoard(board), nil
}

// RenameList renames one list.
func (a *AppServiceAdapter) RenameList(ctx context.Context, in RenameListRequest) (List, error) {
	if err := a.requireService(); err != nil {
		return List{}, err
	}
	list, err := a.service.RenameList(ctx, in.ListID, in.Name)
	if err != nil {
		return List{}, mapAppError("rename list", err)
	}
	return mapList(list), nil
}

// ArchiveList archives one list.
func (a *AppServiceAdapter) ArchiveList(ctx context.Context, listID string) (List, error) {
	if err := a.requireService(); err != nil {
		return List{}, err
	}
	list, err := a.service.ArchiveList(ctx, listID)
	if err != nil {
		return List{}, mapAppError("archive list", err)
	}
	return mapList(list), nil
}

// GetCard returns one card.
func (a *AppServiceAdapter) GetCard(ctx context.Context, cardID string) (Card, error) {
	if err := a.requireService(); err != nil {
		return Card{}, err
	}
	card, err := a.service.GetCard(ctx, cardID)
	if err != nil {
		return Card{}, mapAppError("get card", err)
	}
	return mapCard(card), nil
}

// UpdateCard applies a partial card edit over the stored card.
func (a *AppServiceAdapter) UpdateCard(ctx context.Context, in UpdateCardRequest) (Card, error) {
	if err := a.requireService(); err != nil {
		return Card{}, err
	}
	if in.ClearDue && in.DueAt != nil {
		return Card{}, fmt.Errorf("due_at and clear_due are exclusive: %w", ErrInvalidRequest)
	}
	current, err := a.service.GetCard(ctx, in.CardID)
	if err != nil {
		return Card{}, mapAppError("update card", err)
	}
	update := app.UpdateCardInput{
		CardID:      current.ID,
		Title:       current.Title,
		Description: current.Description,
		Priority:    current.Priority,
		DueAt:       current.DueAt,
		Labels:      current.Labels,
	}
	if in.Title != nil {
		update.Title = *in.Title
	}
	if in.Description != nil {
		update.Description = *in.Description
	}
	if in.Priority != nil {
		update.Priority = domain.Priority(strings.ToLower(strings.TrimSpace(*in.Priority)))
	}
	switch {
	case in.ClearDue:
		update.DueAt = nil
	case in.DueAt != nil:
		update.DueAt = in.DueAt
	}
	if in.Labels != nil {
		update.Labels = *in.Labels
	}
	card, err := a.service.UpdateCard(ctx, update)
	if err != nil {
		return Card{}, mapAppError("update card", err)
	}
	return mapCard(card), nil
}

// DeleteCard archives or removes one card.
func (a *AppServiceAdapter) DeleteCard(ctx context.Context, in DeleteCardRequest) error {
	if err := a.requireService(); err != nil {
		return err
	}
	if err := a.service.DeleteCard(ctx, in.CardID, app.DeleteMode(in.Mode)); err != nil {
		return mapAppError("delete card", err)
	}
	return nil
}

// RestoreCard restores one archived card at the tail of its list.
func (a *AppServiceAdapter) RestoreCard(ctx context.Context, cardID string) (Card, error) {
	if err := a.requireService(); err != nil {
		return Card{}, err
	}
	card, err := a.service.RestoreCard(ctx, cardID)
	if err != nil {
		return Card{}, mapAppError("restore card", err)
	}
	return mapCard(card), nil
}

// MoveList repositions one list.
func (a *AppServiceAdapter) MoveList(ctx context.Context, in MoveListRequest) (List, error) {
	if err := a.requireService(); err != nil {
		return List{}, err
	}
	if in.ToIndex == nil {
		return List{}, fmt.Errorf("to_index is required: %w", ErrInvalidRequest)
	}
	list, err := a.service.MoveList(ctx, app.MoveListInput{
		ListID:        in.ListID,
		FromIndex:     in.FromIndex,
		ToIndex:       in.ToIndex,
		TargetBoardID: in.TargetBoardID,
		ActorID:       in.ActorID,
	})
	if err != nil {
		return List{}, mapAppError("move list", err)
	}
	return mapList(list), nil
}

// MoveCard repositions one card.
func (a *AppServiceAdapter) MoveCard(ctx context.Context, in MoveCardRequest) (Card, error) {
	if err := a.requireService(); err != nil {
		return Card{}, err
	}
	if in.ToIndex == nil {
		return Card{}, fmt.Errorf("to_index is required: %w", ErrInvalidRequest)
	}
	card, err := a.service.MoveCard(ctx, app.MoveCardInput{
		CardID:       in.CardID,
		FromIndex:    in.FromIndex,
		ToIndex:      in.ToIndex,
		TargetListID: in.TargetListID,
		ActorID:      in.ActorID,
	})
	if err != nil {
		return Card{}, mapAppError("move card", err)
	}
	return mapCard(card), nil
}

// Schema returns the live schema document.
func (a *AppServiceAdapter) Schema(context.Context) (Schema, error) {
	if a == nil || a.schema == nil {
		return Schema{}, fmt.Errorf("schema registry is not configured: %w", ErrUnavailable)
	}
	doc := a.schema.Document()
	if doc.IsZero() {
		return Schema{}, fmt.Errorf("schema has not been loaded: %w", ErrUnavailable)
	}
	out := Schema{Hash: doc.Hash(), Text: doc.Text()}
	for _, def := range doc.Definitions() {
		for _, outcome := range def.Omitted() {
			out.Omitted = append(out.Omitted, OmittedField{
				Entity: def.Entity(),
				Field:  outcome.Name,
				Reason: string(outcome.Reason),
			})
		}
	}
	return out, nil
}

// requireService guards calls made on a zero adapter.
func (a *AppServiceAdapter) requireService() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

// MapChangeEvent converts one domain change event into its transport shape.
func MapChangeEvent(event domain.ChangeEvent) ChangeEvent {
	var metadata map[string]string
	if len(event.Metadata) > 0 {
		metadata = make(map[string]string, len(event.Metadata))
		for k, v := range event.Metadata {
			metadata[k] = v
		}
	}
	return ChangeEvent{
		ID:         event.ID,
		BoardID:    event.BoardID,
		EntityType: string(event.EntityType),
		EntityID:   event.EntityID,
		Operation:  string(event.Operation),
		ActorID:    event.ActorID,
		Metadata:   metadata,
		OccurredAt: event.OccurredAt,
	}
}

func mapBoard(b domain.Board) Board {
	return Board{
		ID:          b.ID,
		Slug:        b.Slug,
		Name:        b.Name,
		Description: b.Description,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
		ArchivedAt:  b.ArchivedAt,
	}
}

func mapList(l domain.List) List {
	return List{
		ID:         l.ID,
		BoardID:    l.BoardID,
		Name:       l.Name,
		WIPLimit:   l.WIPLimit,
		Position:   l.Position,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
		ArchivedAt: l.ArchivedAt,
	}
}

func mapCard(c domain.Card) Card {
	return Card{
		ID:          c.ID,
		BoardID:     c.BoardID,
		ListID:      c.ListID,
		Position:    c.Position,
		Title:       c.Title,
		Description: c.Description,
		Priority:    string(c.Priority),
		DueAt:       c.DueAt,
		Labels:      append([]string(nil), c.Labels...),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		ArchivedAt:  c.ArchivedAt,
	}
}

// mapAppError maps app and domain errors into transport-visible sentinels.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, app.ErrConflict):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, app.ErrInvalidMove),
		errors.Is(err, ordering.ErrMissingTargetIndex),
		errors.Is(err, app.ErrInvalidDeleteMode),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidWIPLimit),
		errors.Is(err, domain.ErrInvalidListID),
		errors.Is(err, domain.ErrInvalidBoardID),
		errors.Is(err, domain.ErrInvalidEntityType):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
