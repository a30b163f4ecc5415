package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hylla/slate/internal/domain"
	"github.com/hylla/slate/internal/ordering"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "slate.snapshot.v1"

// Snapshot represents snapshot data used by this package.
type Snapshot struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Boards     []SnapshotBoard `json:"boards"`
	Lists      []SnapshotList  `json:"lists"`
	Cards      []SnapshotCard  `json:"cards"`
}

// SnapshotBoard represents snapshot board data used by this package.
type SnapshotBoard struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// SnapshotList represents snapshot list data used by this package.
type SnapshotList struct {
	ID         string     `json:"id"`
	BoardID    string     `json:"board_id"`
	Name       string     `json:"name"`
	WIPLimit   int        `json:"wip_limit"`
	Position   float64    `json:"position"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// SnapshotCard represents snapshot card data used by this package.
type SnapshotCard struct {
	ID          string          `json:"id"`
	BoardID     string          `json:"board_id"`
	ListID      string          `json:"list_id"`
	Position    float64         `json:"position"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    domain.Priority `json:"priority"`
	DueAt       *time.Time      `json:"due_at,omitempty"`
	Labels      []string        `json:"labels"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ArchivedAt  *time.Time      `json:"archived_at,omitempty"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context, includeArchived bool) (Snapshot, error) {
	boards, err := s.repo.ListBoards(ctx, includeArchived)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Boards:     make([]SnapshotBoard, 0, len(boards)),
		Lists:      make([]SnapshotList, 0),
		Cards:      make([]SnapshotCard, 0),
	}
	for _, board := range boards {
		snap.Boards = append(snap.Boards, snapshotBoardFromDomain(board))

		lists, listErr := s.repo.ListLists(ctx, board.ID, includeArchived)
		if listErr != nil {
			return Snapshot{}, listErr
		}
		for _, list := range lists {
			snap.Lists = append(snap.Lists, snapshotListFromDomain(list))
		}

		cards, listErr := s.repo.ListCards(ctx, board.ID, includeArchived)
		if listErr != nil {
			return Snapshot{}, listErr
		}
		for _, card := range cards {
			snap.Cards = append(snap.Cards, snapshotCardFromDomain(card))
		}
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot handles import snapshot.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, board := range snap.Boards {
		if err := s.upsertBoard(ctx, board.toDomain()); err != nil {
			return err
		}
	}
	for _, list := range snap.Lists {
		if err := s.upsertList(ctx, list.toDomain()); err != nil {
			return err
		}
	}
	for _, card := range snap.Cards {
		if err := s.upsertCard(ctx, card.toDomain()); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	boardIDs := map[string]struct{}{}
	for i, b := range s.Boards {
		if strings.TrimSpace(b.ID) == "" {
			return fmt.Errorf("boards[%d].id is required", i)
		}
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("boards[%d].name is required", i)
		}
		if b.CreatedAt.IsZero() || b.UpdatedAt.IsZero() {
			return fmt.Errorf("boards[%d] timestamps are required", i)
		}
		if _, exists := boardIDs[b.ID]; exists {
			return fmt.Errorf("duplicate board id: %q", b.ID)
		}
		boardIDs[b.ID] = struct{}{}
	}

	listBoards := map[string]string{}
	for i, l := range s.Lists {
		if strings.TrimSpace(l.ID) == "" {
			return fmt.Errorf("lists[%d].id is required", i)
		}
		if strings.TrimSpace(l.Name) == "" {
			return fmt.Errorf("lists[%d].name is required", i)
		}
		if !domain.ValidPosition(l.Position) {
			return fmt.Errorf("lists[%d].position must be finite", i)
		}
		if l.WIPLimit < 0 {
			return fmt.Errorf("lists[%d].wip_limit must be >= 0", i)
		}
		if l.CreatedAt.IsZero() || l.UpdatedAt.IsZero() {
			return fmt.Errorf("lists[%d] timestamps are required", i)
		}
		if _, ok := boardIDs[l.BoardID]; !ok {
			return fmt.Errorf("lists[%d] references unknown board_id %q", i, l.BoardID)
		}
		if _, exists := listBoards[l.ID]; exists {
			return fmt.Errorf("duplicate list id: %q", l.ID)
		}
		listBoards[l.ID] = l.BoardID
	}

	cardIDs := map[string]struct{}{}
	for i, c := range s.Cards {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("cards[%d].id is required", i)
		}
		if strings.TrimSpace(c.Title) == "" {
			return fmt.Errorf("cards[%d].title is required", i)
		}
		if !domain.ValidPosition(c.Position) {
			return fmt.Errorf("cards[%d].position must be finite", i)
		}
		if c.CreatedAt.IsZero() || c.UpdatedAt.IsZero() {
			return fmt.Errorf("cards[%d] timestamps are required", i)
		}
		boardID, ok := listBoards[c.ListID]
		if !ok {
			return fmt.Errorf("cards[%d] references unknown list_id %q", i, c.ListID)
		}
		if boardID != c.BoardID {
			return fmt.Errorf("cards[%d] board_id %q does not match list board %q", i, c.BoardID, boardID)
		}
		if _, exists := cardIDs[c.ID]; exists {
			return fmt.Errorf("duplicate card id: %q", c.ID)
		}
		if c.Priority == "" {
			s.Cards[i].Priority = domain.PriorityMedium
		}
		cardIDs[c.ID] = struct{}{}
	}
	return nil
}

// upsertBoard handles upsert board.
func (s *Service) upsertBoard(ctx context.Context, b domain.Board) error {
	if _, err := s.repo.GetBoard(ctx, b.ID); err == nil {
		return s.repo.UpdateBoard(ctx, b)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateBoard(ctx, b)
}

// upsertList handles upsert list.
func (s *Service) upsertList(ctx context.Context, l domain.List) error {
	if _, err := s.repo.GetList(ctx, l.ID); err == nil {
		return s.repo.UpdateList(ctx, l)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateList(ctx, l)
}

// upsertCard handles upsert card.
func (s *Service) upsertCard(ctx context.Context, c domain.Card) error {
	if _, err := s.repo.GetCard(ctx, c.ID); err == nil {
		return s.repo.UpdateCard(ctx, c)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateCard(ctx, c)
}

// sort orders boards by id, and lists and cards by container then display order.
func (s *Snapshot) sort() {
	slices.SortFunc(s.Boards, func(a, b SnapshotBoard) int {
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortFunc(s.Lists, func(a, b SnapshotList) int {
		if c := strings.Compare(a.BoardID, b.BoardID); c != 0 {
			return c
		}
		return ordering.Compare(
			ordering.PositionedEntity{ID: a.ID, Position: a.Position},
			ordering.PositionedEntity{ID: b.ID, Position: b.Position},
		)
	})
	slices.SortFunc(s.Cards, func(a, b SnapshotCard) int {
		if c := strings.Compare(a.BoardID, b.BoardID); c != 0 {
			return c
		}
		if c := strings.Compare(a.ListID, b.ListID); c != 0 {
			return c
		}
		return ordering.Compare(
			ordering.PositionedEntity{ID: a.ID, Position: a.Position},
			ordering.PositionedEntity{ID: b.ID, Position: b.Position},
		)
	})
}

// snapshotBoardFromDomain handles snapshot board from domain.
func snapshotBoardFromDomain(b domain.Board) SnapshotBoard {
	return SnapshotBoard{
		ID:          b.ID,
		Slug:        b.Slug,
		Name:        b.Name,
		Description: b.Description,
		CreatedAt:   b.CreatedAt.UTC(),
		UpdatedAt:   b.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(b.ArchivedAt),
	}
}

// snapshotListFromDomain handles snapshot list from domain.
func snapshotListFromDomain(l domain.List) SnapshotList {
	return SnapshotList{
		ID:         l.ID,
		BoardID:    l.BoardID,
		Name:       l.Name,
		WIPLimit:   l.WIPLimit,
		Position:   l.Position,
		CreatedAt:  l.CreatedAt.UTC(),
		UpdatedAt:  l.UpdatedAt.UTC(),
		ArchivedAt: copyTimePtr(l.ArchivedAt),
	}
}

// snapshotCardFromDomain handles snapshot card from domain.
func snapshotCardFromDomain(c domain.Card) SnapshotCard {
	return SnapshotCard{
		ID:          c.ID,
		BoardID:     c.BoardID,
		ListID:      c.ListID,
		Position:    c.Position,
		Title:       c.Title,
		Description: c.Description,
		Priority:    c.Priority,
		DueAt:       copyTimePtr(c.DueAt),
		Labels:      append([]string{}, c.Labels...),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(c.ArchivedAt),
	}
}

// toDomain converts domain.
func (b SnapshotBoard) toDomain() domain.Board {
	slug := strings.TrimSpace(b.Slug)
	if slug == "" {
		slug = fallbackSlug(b.Name)
	}
	return domain.Board{
		ID:          strings.TrimSpace(b.ID),
		Slug:        slug,
		Name:        strings.TrimSpace(b.Name),
		Description: strings.TrimSpace(b.Description),
		CreatedAt:   b.CreatedAt.UTC(),
		UpdatedAt:   b.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(b.ArchivedAt),
	}
}

// toDomain converts domain.
func (l SnapshotList) toDomain() domain.List {
	return domain.List{
		ID:         strings.TrimSpace(l.ID),
		BoardID:    strings.TrimSpace(l.BoardID),
		Name:       strings.TrimSpace(l.Name),
		WIPLimit:   l.WIPLimit,
		Position:   l.Position,
		CreatedAt:  l.CreatedAt.UTC(),
		UpdatedAt:  l.UpdatedAt.UTC(),
		ArchivedAt: copyTimePtr(l.ArchivedAt),
	}
}

// toDomain converts domain.
func (c SnapshotCard) toDomain() domain.Card {
	return domain.Card{
		ID:          strings.TrimSpace(c.ID),
		BoardID:     strings.TrimSpace(c.BoardID),
		ListID:      strings.TrimSpace(c.ListID),
		Position:    c.Position,
		Title:       strings.TrimSpace(c.Title),
		Description: strings.TrimSpace(c.Description),
		Priority:    c.Priority,
		DueAt:       copyTimePtr(c.DueAt),
		Labels:      append([]string{}, c.Labels...),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
		ArchivedAt:  copyTimePtr(c.ArchivedAt),
	}
}

// fallbackSlug provides fallback slug.
func fallbackSlug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	return strings.Trim(name, "-")
}

// copyTimePtr copies time ptr.
func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	t := in.UTC().Truncate(time.Second)
	return &t
}
