package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/slate/internal/domain"
	"github.com/hylla/slate/internal/ordering"
)

// DeleteMode represents a selectable mode.
type DeleteMode string

// DeleteModeArchive and related constants define package defaults.
const (
	DeleteModeArchive DeleteMode = "archive"
	DeleteModeHard    DeleteMode = "hard"
)

// DefaultMaxMoveRetries bounds conflict retries for one move request.
const DefaultMaxMoveRetries = 3

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultDeleteMode    DeleteMode
	ListTemplates        []ListTemplate
	AutoCreateBoardLists bool
	// MinGap is the neighbor gap below which a container is renormalized before a move.
	MinGap float64
	// MaxMoveRetries of zero selects the default; negative disables retries.
	MaxMoveRetries int
	Events         EventSink
}

// ListTemplate describes one list created for new boards.
type ListTemplate struct {
	Name     string
	WIPLimit int
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service coordinates board, list and card use cases.
type Service struct {
	repo              Repository
	idGen             IDGenerator
	clock             Clock
	defaultDeleteMode DeleteMode
	listTemplates     []ListTemplate
	autoBoardLists    bool
	minGap            float64
	maxMoveRetries    int
	events            EventSink
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.DefaultDeleteMode == "" {
		cfg.DefaultDeleteMode = DeleteModeArchive
	}
	templates := sanitizeListTemplates(cfg.ListTemplates)
	if len(templates) == 0 {
		templates = defaultListTemplates()
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = ordering.DefaultMinGap
	}
	switch {
	case cfg.MaxMoveRetries == 0:
		cfg.MaxMoveRetries = DefaultMaxMoveRetries
	case cfg.MaxMoveRetries < 0:
		cfg.MaxMoveRetries = 0
	}

	return &Service{
		repo:              repo,
		idGen:             idGen,
		clock:             clock,
		defaultDeleteMode: cfg.DefaultDeleteMode,
		listTemplates:     templates,
		autoBoardLists:    cfg.AutoCreateBoardLists,
		minGap:            cfg.MinGap,
		maxMoveRetries:    cfg.MaxMoveRetries,
		events:            cfg.Events,
	}
}

// EnsureDefaultBoard returns the first active board, creating one with template lists if none exist.
func (s *Service) EnsureDefaultBoard(ctx context.Context) (domain.Board, error) {
	boards, err := s.repo.ListBoards(ctx, false)
	if err != nil {
		return domain.Board{}, err
	}
	if len(boards) > 0 {
		return boards[0], nil
	}

	now := s.clock()
	board, err := domain.NewBoard(s.idGen(), "Inbox", "Default board", now)
	if err != nil {
		return domain.Board{}, err
	}
	if err := s.repo.CreateBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	if err := s.createDefaultLists(ctx, board); err != nil {
		return domain.Board{}, err
	}
	return board, nil
}

// CreateBoardInput holds input values for create board operations.
type CreateBoardInput struct {
	Name        string
	Description string
}

// CreateBoard creates a board and, when enabled, its template lists.
// A board whose template lists cannot all be created is archived before the error is returned.
func (s *Service) CreateBoard(ctx context.Context, in CreateBoardInput) (domain.Board, error) {
	board, err := domain.NewBoard(s.idGen(), in.Name, in.Description, s.clock())
	if err != nil {
		return domain.Board{}, err
	}
	if err := s.repo.CreateBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	if s.autoBoardLists {
		if err := s.createDefaultLists(ctx, board); err != nil {
			return domain.Board{}, err
		}
	}
	return board, nil
}

// UpdateBoardInput holds input values for update board operations.
type UpdateBoardInput struct {
	BoardID     string
	Name        string
	Description string
}

// UpdateBoard updates board details.
func (s *Service) UpdateBoard(ctx context.Context, in UpdateBoardInput) (domain.Board, error) {
	board, err := s.repo.GetBoard(ctx, strings.TrimSpace(in.BoardID))
	if err != nil {
		return domain.Board{}, err
	}
	if err := board.UpdateDetails(in.Name, in.Description, s.clock()); err != nil {
		return domain.Board{}, err
	}
	if err := s.repo.UpdateBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	s.publishEntity(ctx, board.ID, domain.EntityTypeBoard, board.ID, domain.ChangeOperationUpdate, board.UpdatedAt,
		map[string]string{"name": board.Name})
	return board, nil
}

// ArchiveBoard archives a board.
func (s *Service) ArchiveBoard(ctx context.Context, boardID string) (domain.Board, error) {
	board, err := s.repo.GetBoard(ctx, strings.TrimSpace(boardID))
	if err != nil {
		return domain.Board{}, err
	}
	board.Archive(s.clock())
	if err := s.repo.UpdateBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	s.publishEntity(ctx, board.ID, domain.EntityTypeBoard, board.ID, domain.ChangeOperationArchive, board.UpdatedAt, nil)
	return board, nil
}

// RestoreBoard restores an archived board.
func (s *Service) RestoreBoard(ctx context.Context, boardID string) (domain.Board, error) {
	board, err := s.repo.GetBoard(ctx, strings.TrimSpace(boardID))
	if err != nil {
		return domain.Board{}, err
	}
	board.Restore(s.clock())
	if err := s.repo.UpdateBoard(ctx, board); err != nil {
		return domain.Board{}, err
	}
	s.publishEntity(ctx, board.ID, domain.EntityTypeBoard, board.ID, domain.ChangeOperationRestore, board.UpdatedAt, nil)
	return board, nil
}

// ListBoards lists boards.
func (s *Service) ListBoards(ctx context.Context, includeArchived bool) ([]domain.Board, error) {
	return s.repo.ListBoards(ctx, includeArchived)
}

// GetBoard returns one board.
func (s *Service) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	return s.repo.GetBoard(ctx, strings.TrimSpace(boardID))
}

// ListView is one list with its ordered cards.
type ListView struct {
	List  domain.List
	Cards []domain.Card
}

// BoardView is one board with its ordered lists and cards.
type BoardView struct {
	Board domain.Board
	Lists []ListView
}

// GetBoardView returns a board with lists and cards in display order.
func (s *Service) GetBoardView(ctx context.Context, boardID string, includeArchived bool) (BoardView, error) {
	board, err := s.repo.GetBoard(ctx, strings.TrimSpace(boardID))
	if err != nil {
		return BoardView{}, err
	}
	lists, err := s.ListLists(ctx, board.ID, includeArchived)
	if err != nil {
		return BoardView{}, err
	}
	cards, err := s.ListCards(ctx, board.ID, includeArchived)
	if err != nil {
		return BoardView{}, err
	}
	byList := map[string][]domain.Card{}
	for _, card := range cards {
		byList[card.ListID] = append(byList[card.ListID], card)
	}
	view := BoardView{Board: board, Lists: make([]ListView, 0, len(lists))}
	for _, list := range lists {
		listCards := byList[list.ID]
		if listCards == nil {
			listCards = []domain.Card{}
		}
		view.Lists = append(view.Lists, ListView{List: list, Cards: listCards})
	}
	return view, nil
}

// CreateListInput holds input values for create list operations.
type CreateListInput struct {
	BoardID  string
	Name     string
	WIPLimit int
	ActorID  string
}

// CreateList appends a list at the tail of its board.
func (s *Service) CreateList(ctx context.Context, in CreateListInput) (domain.List, error) {
	in.ActorID = resolveActor(ctx, in.ActorID)
	board, err := s.repo.GetBoard(ctx, strings.TrimSpace(in.BoardID))
	if err != nil {
		return domain.List{}, err
	}
	snap, err := s.repo.ListOrder(ctx, board.ID)
	if err != nil {
		return domain.List{}, err
	}
	position := ordering.InsertAt(snap.Items, len(snap.Items))
	list, err := domain.NewList(s.idGen(), board.ID, in.Name, position, in.WIPLimit, s.clock())
	if err != nil {
		return domain.List{}, err
	}
	if err := s.repo.CreateList(ctx, list); err != nil {
		return domain.List{}, err
	}
	s.publish(ctx, domain.ChangeEvent{
		BoardID:    list.BoardID,
		EntityType: domain.EntityTypeList,
		EntityID:   list.ID,
		Operation:  domain.ChangeOperationCreate,
		ActorID:    in.ActorID,
		Metadata:   map[string]string{"position": formatPosition(list.Position), "name": list.Name},
		OccurredAt: list.CreatedAt,
	})
	return list, nil
}

// RenameList renames a list.
func (s *Service) RenameList(ctx context.Context, listID, name string) (domain.List, error) {
	list, err := s.repo.GetList(ctx, strings.TrimSpace(listID))
	if err != nil {
		return domain.List{}, err
	}
	if err := list.Rename(name, s.clock()); err != nil {
		return domain.List{}, err
	}
	if err := s.repo.UpdateList(ctx, list); err != nil {
		return domain.List{}, err
	}
	s.publishEntity(ctx, list.BoardID, domain.EntityTypeList, list.ID, domain.ChangeOperationUpdate, list.UpdatedAt,
		map[string]string{"name": list.Name})
	return list, nil
}

// ArchiveList archives a list, removing it from its board's order.
func (s *Service) ArchiveList(ctx context.Context, listID string) (domain.List, error) {
	list, err := s.repo.GetList(ctx, strings.TrimSpace(listID))
	if err != nil {
		return domain.List{}, err
	}
	list.Archive(s.clock())
	if err := s.repo.UpdateList(ctx, list); err != nil {
		return domain.List{}, err
	}
	s.publishEntity(ctx, list.BoardID, domain.EntityTypeList, list.ID, domain.ChangeOperationArchive, list.UpdatedAt, nil)
	return list, nil
}

// ListLists lists a board's lists in display order.
func (s *Service) ListLists(ctx context.Context, boardID string, includeArchived bool) ([]domain.List, error) {
	lists, err := s.repo.ListLists(ctx, boardID, includeArchived)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(lists, func(a, b domain.List) int {
		return ordering.Compare(listEntity(a), listEntity(b))
	})
	return lists, nil
}

// CreateCardInput holds input values for create card operations.
type CreateCardInput struct {
	ListID      string
	Title       string
	Description string
	Priority    domain.Priority
	DueAt       *time.Time
	Labels      []string
	ActorID     string
}

// UpdateCardInput holds input values for update card operations.
type UpdateCardInput struct {
	CardID      string
	Title       string
	Description string
	Priority    domain.Priority
	DueAt       *time.Time
	Labels      []string
}

// CreateCard appends a card at the tail of its list.
func (s *Service) CreateCard(ctx context.Context, in CreateCardInput) (domain.Card, error) {
	in.ActorID = resolveActor(ctx, in.ActorID)
	list, err := s.repo.GetList(ctx, strings.TrimSpace(in.ListID))
	if err != nil {
		return domain.Card{}, err
	}
	if list.ArchivedAt != nil {
		return domain.Card{}, fmt.Errorf("%w: list %q is archived", ErrInvalidMove, list.ID)
	}
	snap, err := s.repo.CardOrder(ctx, list.ID)
	if err != nil {
		return domain.Card{}, err
	}

	card, err := domain.NewCard(domain.CardInput{
		ID:          s.idGen(),
		BoardID:     list.BoardID,
		ListID:      list.ID,
		Position:    ordering.InsertAt(snap.Items, len(snap.Items)),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		DueAt:       in.DueAt,
		Labels:      in.Labels,
	}, s.clock())
	if err != nil {
		return domain.Card{}, err
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return domain.Card{}, err
	}
	s.publish(ctx, domain.ChangeEvent{
		BoardID:    card.BoardID,
		EntityType: domain.EntityTypeCard,
		EntityID:   card.ID,
		Operation:  domain.ChangeOperationCreate,
		ActorID:    in.ActorID,
		Metadata: map[string]string{
			"list_id":  card.ListID,
			"position": formatPosition(card.Position),
			"title":    card.Title,
		},
		OccurredAt: card.CreatedAt,
	})
	return card, nil
}

// GetCard returns one card.
func (s *Service) GetCard(ctx context.Context, cardID string) (domain.Card, error) {
	return s.repo.GetCard(ctx, strings.TrimSpace(cardID))
}

// UpdateCard updates card details.
func (s *Service) UpdateCard(ctx context.Context, in UpdateCardInput) (domain.Card, error) {
	card, err := s.repo.GetCard(ctx, strings.TrimSpace(in.CardID))
	if err != nil {
		return domain.Card{}, err
	}
	if err := card.UpdateDetails(in.Title, in.Description, in.Priority, in.DueAt, in.Labels, s.clock()); err != nil {
		return domain.Card{}, err
	}
	if err := s.repo.UpdateCard(ctx, card); err != nil {
		return domain.Card{}, err
	}
	s.publishEntity(ctx, card.BoardID, domain.EntityTypeCard, card.ID, domain.ChangeOperationUpdate, card.UpdatedAt,
		map[string]string{"list_id": card.ListID, "title": card.Title})
	return card, nil
}

// DeleteCard archives or removes a card. An empty mode selects the configured default.
func (s *Service) DeleteCard(ctx context.Context, cardID string, mode DeleteMode) error {
	mode = DeleteMode(strings.ToLower(strings.TrimSpace(string(mode))))
	if mode == "" {
		mode = s.defaultDeleteMode
	}
	if mode != DeleteModeArchive && mode != DeleteModeHard {
		return ErrInvalidDeleteMode
	}

	card, err := s.repo.GetCard(ctx, strings.TrimSpace(cardID))
	if err != nil {
		return err
	}
	now := s.clock()
	operation := domain.ChangeOperationArchive
	if mode == DeleteModeHard {
		operation = domain.ChangeOperationDelete
		if err := s.repo.DeleteCard(ctx, card.ID); err != nil {
			return err
		}
	} else {
		card.Archive(now)
		if err := s.repo.UpdateCard(ctx, card); err != nil {
			return err
		}
	}
	s.publishEntity(ctx, card.BoardID, domain.EntityTypeCard, card.ID, operation, now,
		map[string]string{"list_id": card.ListID})
	return nil
}

// RestoreCard restores an archived card at the tail of its list.
// The list itself must be active.
func (s *Service) RestoreCard(ctx context.Context, cardID string) (domain.Card, error) {
	card, err := s.repo.GetCard(ctx, strings.TrimSpace(cardID))
	if err != nil {
		return domain.Card{}, err
	}
	if card.ArchivedAt == nil {
		return card, nil
	}
	list, err := s.repo.GetList(ctx, card.ListID)
	if err != nil {
		return domain.Card{}, err
	}
	if list.ArchivedAt != nil {
		return domain.Card{}, fmt.Errorf("%w: list %q is archived", ErrInvalidMove, list.ID)
	}
	snap, err := s.repo.CardOrder(ctx, card.ListID)
	if err != nil {
		return domain.Card{}, err
	}
	now := s.clock()
	card.Restore(now)
	if err := card.MoveTo(card.ListID, ordering.InsertAt(snap.Items, len(snap.Items)), now); err != nil {
		return domain.Card{}, err
	}
	if err := s.repo.UpdateCard(ctx, card); err != nil {
		return domain.Card{}, err
	}
	s.publishEntity(ctx, card.BoardID, domain.EntityTypeCard, card.ID, domain.ChangeOperationRestore, card.UpdatedAt,
		map[string]string{"list_id": card.ListID, "position": formatPosition(card.Position)})
	return card, nil
}

// ListCards lists a board's cards grouped by list in display order.
// Cards whose list is not on the board sort after the rest.
func (s *Service) ListCards(ctx context.Context, boardID string, includeArchived bool) ([]domain.Card, error) {
	cards, err := s.repo.ListCards(ctx, boardID, includeArchived)
	if err != nil {
		return nil, err
	}
	lists, err := s.ListLists(ctx, boardID, true)
	if err != nil {
		return nil, err
	}
	rank := make(map[string]int, len(lists))
	for i, list := range lists {
		rank[list.ID] = i
	}
	slices.SortFunc(cards, func(a, b domain.Card) int {
		if a.ListID != b.ListID {
			ra, okA := rank[a.ListID]
			rb, okB := rank[b.ListID]
			switch {
			case okA && okB:
				return cmp.Compare(ra, rb)
			case okA:
				return -1
			case okB:
				return 1
			}
			return strings.Compare(a.ListID, b.ListID)
		}
		return ordering.Compare(cardEntity(a), cardEntity(b))
	})
	return cards, nil
}

// ListBoardChangeEvents lists recent change events for a board.
func (s *Service) ListBoardChangeEvents(ctx context.Context, boardID string, limit int) ([]domain.ChangeEvent, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListBoardChangeEvents(ctx, boardID, limit)
}

// MoveListInput holds input values for move list operations.
type MoveListInput struct {
	ListID    string
	FromIndex *int
	ToIndex   *int
	// TargetBoardID defaults to the list's current board.
	TargetBoardID string
	ActorID       string
}

// MoveCardInput holds input values for move card operations.
type MoveCardInput struct {
	CardID    string
	FromIndex *int
	ToIndex   *int
	// TargetListID defaults to the card's current list.
	TargetListID string
	ActorID      string
}

// MoveList repositions a list, retrying on version conflicts.
func (s *Service) MoveList(ctx context.Context, in MoveListInput) (domain.List, error) {
	in.ActorID = resolveActor(ctx, in.ActorID)
	in.ListID = strings.TrimSpace(in.ListID)
	if in.ListID == "" {
		return domain.List{}, domain.ErrInvalidID
	}
	if in.ToIndex == nil {
		return domain.List{}, fmt.Errorf("%w: %w", ErrInvalidMove, ordering.ErrMissingTargetIndex)
	}
	return retryOnConflict(ctx, s.maxMoveRetries, func() (domain.List, error) {
		return s.moveListOnce(ctx, in)
	})
}

// MoveCard repositions a card within or across lists, retrying on version conflicts.
func (s *Service) MoveCard(ctx context.Context, in MoveCardInput) (domain.Card, error) {
	in.ActorID = resolveActor(ctx, in.ActorID)
	in.CardID = strings.TrimSpace(in.CardID)
	if in.CardID == "" {
		return domain.Card{}, domain.ErrInvalidID
	}
	if in.ToIndex == nil {
		return domain.Card{}, fmt.Errorf("%w: %w", ErrInvalidMove, ordering.ErrMissingTargetIndex)
	}
	return retryOnConflict(ctx, s.maxMoveRetries, func() (domain.Card, error) {
		return s.moveCardOnce(ctx, in)
	})
}

// retryOnConflict runs fn until it succeeds, fails with a non-conflict error, or retries run out.
func retryOnConflict[T any](ctx context.Context, retries int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrConflict) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// moveListOnce performs one read-place-commit cycle for a list.
func (s *Service) moveListOnce(ctx context.Context, in MoveListInput) (domain.List, error) {
	list, err := s.repo.GetList(ctx, in.ListID)
	if err != nil {
		return domain.List{}, err
	}
	if list.ArchivedAt != nil {
		return domain.List{}, fmt.Errorf("%w: list %q is archived", ErrInvalidMove, list.ID)
	}
	targetID := strings.TrimSpace(in.TargetBoardID)
	if targetID == "" {
		targetID = list.BoardID
	}
	target, err := s.repo.GetBoard(ctx, targetID)
	if err != nil {
		return domain.List{}, err
	}
	if target.ArchivedAt != nil {
		return domain.List{}, fmt.Errorf("%w: board %q is archived", ErrInvalidMove, target.ID)
	}

	now := s.clock()
	move := ListMove{
		ListID:      list.ID,
		FromBoardID: list.BoardID,
		ToBoardID:   target.ID,
		ActorID:     in.ActorID,
		MovedAt:     now,
	}
	req := ordering.MoveRequest{EntityID: list.ID, ToIndex: in.ToIndex, TargetContainerID: target.ID}
	if target.ID == list.BoardID {
		req.FromIndex = in.FromIndex
	} else {
		source, err := s.repo.ListOrder(ctx, list.BoardID)
		if err != nil {
			return domain.List{}, err
		}
		if _, _, ok := ordering.Detach(source.Items, list.ID); !ok {
			return domain.List{}, fmt.Errorf("list %q missing from board order: %w", list.ID, ErrConflict)
		}
		move.FromVersion = source.Version
	}

	placement, dest, err := s.placeWithRenormalize(ctx, req, domain.EntityTypeList, target.ID, in.ActorID, func() (OrderSnapshot, error) {
		return s.repo.ListOrder(ctx, target.ID)
	})
	if err != nil {
		return domain.List{}, err
	}
	if placement.NoOp {
		return list, nil
	}
	move.Position = placement.Position
	move.ToVersion = dest.Version
	if target.ID == list.BoardID {
		move.FromVersion = dest.Version
	}
	if err := s.repo.CommitListMove(ctx, move); err != nil {
		return domain.List{}, err
	}
	updated, err := s.repo.GetList(ctx, list.ID)
	if err != nil {
		return domain.List{}, err
	}
	s.publish(ctx, domain.ChangeEvent{
		BoardID:    target.ID,
		EntityType: domain.EntityTypeList,
		EntityID:   list.ID,
		Operation:  domain.ChangeOperationMove,
		ActorID:    in.ActorID,
		Metadata: map[string]string{
			"from_board_id": list.BoardID,
			"to_board_id":   target.ID,
			"position":      formatPosition(placement.Position),
			"to_index":      strconv.Itoa(placement.Index),
		},
		OccurredAt: now.UTC(),
	})
	return updated, nil
}

// moveCardOnce performs one read-place-commit cycle for a card.
func (s *Service) moveCardOnce(ctx context.Context, in MoveCardInput) (domain.Card, error) {
	card, err := s.repo.GetCard(ctx, in.CardID)
	if err != nil {
		return domain.Card{}, err
	}
	if card.ArchivedAt != nil {
		return domain.Card{}, fmt.Errorf("%w: card %q is archived", ErrInvalidMove, card.ID)
	}
	targetID := strings.TrimSpace(in.TargetListID)
	if targetID == "" {
		targetID = card.ListID
	}
	target, err := s.repo.GetList(ctx, targetID)
	if err != nil {
		return domain.Card{}, err
	}
	if target.BoardID != card.BoardID {
		return domain.Card{}, fmt.Errorf("%w: list %q belongs to another board", ErrInvalidMove, target.ID)
	}
	if target.ArchivedAt != nil {
		return domain.Card{}, fmt.Errorf("%w: list %q is archived", ErrInvalidMove, target.ID)
	}

	now := s.clock()
	move := CardMove{
		CardID:     card.ID,
		FromListID: card.ListID,
		ToListID:   target.ID,
		ActorID:    in.ActorID,
		MovedAt:    now,
	}
	req := ordering.MoveRequest{EntityID: card.ID, ToIndex: in.ToIndex, TargetContainerID: target.ID}
	if target.ID == card.ListID {
		req.FromIndex = in.FromIndex
	} else {
		source, err := s.repo.CardOrder(ctx, card.ListID)
		if err != nil {
			return domain.Card{}, err
		}
		if _, _, ok := ordering.Detach(source.Items, card.ID); !ok {
			return domain.Card{}, fmt.Errorf("card %q missing from list order: %w", card.ID, ErrConflict)
		}
		move.FromVersion = source.Version
	}

	placement, dest, err := s.placeWithRenormalize(ctx, req, domain.EntityTypeCard, card.BoardID, in.ActorID, func() (OrderSnapshot, error) {
		return s.repo.CardOrder(ctx, target.ID)
	})
	if err != nil {
		return domain.Card{}, err
	}
	if placement.NoOp {
		return card, nil
	}
	move.Position = placement.Position
	move.ToVersion = dest.Version
	if target.ID == card.ListID {
		move.FromVersion = dest.Version
	}
	if err := s.repo.CommitCardMove(ctx, move); err != nil {
		return domain.Card{}, err
	}
	updated, err := s.repo.GetCard(ctx, card.ID)
	if err != nil {
		return domain.Card{}, err
	}
	s.publish(ctx, domain.ChangeEvent{
		BoardID:    card.BoardID,
		EntityType: domain.EntityTypeCard,
		EntityID:   card.ID,
		Operation:  domain.ChangeOperationMove,
		ActorID:    in.ActorID,
		Metadata: map[string]string{
			"from_list_id": card.ListID,
			"to_list_id":   target.ID,
			"position":     formatPosition(placement.Position),
			"to_index":     strconv.Itoa(placement.Index),
		},
		OccurredAt: now.UTC(),
	})
	return updated, nil
}

// placeWithRenormalize reads the destination order and places the entity. When the gap is
// exhausted the container is renormalized once and the placement recomputed on a fresh read.
func (s *Service) placeWithRenormalize(
	ctx context.Context,
	req ordering.MoveRequest,
	entityType domain.EntityType,
	boardID, actorID string,
	read func() (OrderSnapshot, error),
) (ordering.Placement, OrderSnapshot, error) {
	renormalized := false
	for {
		dest, err := read()
		if err != nil {
			return ordering.Placement{}, OrderSnapshot{}, err
		}
		placement, err := ordering.Place(dest.Items, req, s.minGap)
		if err != nil {
			return ordering.Placement{}, OrderSnapshot{}, fmt.Errorf("%w: %w", ErrInvalidMove, err)
		}
		if !placement.NeedsRenormalize || renormalized {
			return placement, dest, nil
		}
		if err := s.renormalize(ctx, entityType, boardID, actorID, dest); err != nil {
			return ordering.Placement{}, OrderSnapshot{}, err
		}
		renormalized = true
	}
}

// renormalize rewrites one container to positions 1..N.
func (s *Service) renormalize(ctx context.Context, entityType domain.EntityType, boardID, actorID string, snap OrderSnapshot) error {
	now := s.clock()
	if err := s.repo.CommitRenormalize(ctx, Renormalization{
		EntityType:      entityType,
		BoardID:         boardID,
		ContainerID:     snap.ContainerID,
		ExpectedVersion: snap.Version,
		Items:           ordering.Renormalize(snap.Items),
		ActorID:         actorID,
		At:              now,
	}); err != nil {
		return err
	}
	s.publish(ctx, domain.ChangeEvent{
		BoardID:    boardID,
		EntityType: entityType,
		EntityID:   snap.ContainerID,
		Operation:  domain.ChangeOperationRenormalize,
		ActorID:    actorID,
		Metadata: map[string]string{
			"container_id": snap.ContainerID,
			"count":        strconv.Itoa(len(snap.Items)),
		},
		OccurredAt: now.UTC(),
	})
	return nil
}

// publishEntity forwards one committed non-move change.
func (s *Service) publishEntity(ctx context.Context, boardID string, entityType domain.EntityType, entityID string, operation domain.ChangeOperation, at time.Time, metadata map[string]string) {
	s.publish(ctx, domain.ChangeEvent{
		BoardID:    boardID,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Metadata:   metadata,
		OccurredAt: at.UTC(),
	})
}

// publish forwards one committed event to the configured sink.
func (s *Service) publish(ctx context.Context, event domain.ChangeEvent) {
	if s.events == nil {
		return
	}
	event.ActorID = resolveActor(ctx, event.ActorID)
	s.events.PublishChange(ctx, event)
}

// listEntity adapts a list to the ordering engine.
func listEntity(l domain.List) ordering.PositionedEntity {
	return ordering.PositionedEntity{ID: l.ID, Position: l.Position, ContainerID: l.BoardID, Seq: l.CreatedSeq}
}

// cardEntity adapts a card to the ordering engine.
func cardEntity(c domain.Card) ordering.PositionedEntity {
	return ordering.PositionedEntity{ID: c.ID, Position: c.Position, ContainerID: c.ListID, Seq: c.CreatedSeq}
}

// formatPosition renders a position for event metadata.
func formatPosition(position float64) string {
	return strconv.FormatFloat(position, 'g', -1, 64)
}

// defaultListTemplates returns default list templates.
func defaultListTemplates() []ListTemplate {
	return []ListTemplate{
		{Name: "To Do"},
		{Name: "In Progress"},
		{Name: "Done"},
	}
}

// sanitizeListTemplates trims names and drops blank or duplicate entries.
func sanitizeListTemplates(in []ListTemplate) []ListTemplate {
	if len(in) == 0 {
		return nil
	}
	out := make([]ListTemplate, 0, len(in))
	seen := map[string]struct{}{}
	for _, tmpl := range in {
		tmpl.Name = strings.TrimSpace(tmpl.Name)
		if tmpl.Name == "" {
			continue
		}
		key := strings.ToLower(tmpl.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if tmpl.WIPLimit < 0 {
			tmpl.WIPLimit = 0
		}
		out = append(out, tmpl)
	}
	return out
}

// createDefaultLists appends template lists to a new board, archiving the board on failure.
func (s *Service) createDefaultLists(ctx context.Context, board domain.Board) error {
	for _, tmpl := range s.listTemplates {
		if _, err := s.CreateList(ctx, CreateListInput{BoardID: board.ID, Name: tmpl.Name, WIPLimit: tmpl.WIPLimit}); err != nil {
			err = fmt.Errorf("create default list %q: %w", tmpl.Name, err)
			board.Archive(s.clock())
			if archiveErr := s.repo.UpdateBoard(ctx, board); archiveErr != nil {
				return errors.Join(err, fmt.Errorf("archive incomplete board %q: %w", board.ID, archiveErr))
			}
			return err
		}
	}
	return nil
}
