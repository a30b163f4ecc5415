package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hylla/slate/internal/domain"
	"github.com/hylla/slate/internal/ordering"
)

type fakeRepo struct {
	boards       map[string]domain.Board
	lists        map[string]domain.List
	cards        map[string]domain.Card
	listVersions map[string]int64
	cardVersions map[string]int64
	seq          int64
	// conflicts makes the next N move commits fail as if another writer won.
	conflicts   int
	moveCommits int
	renormCount int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		boards:       map[string]domain.Board{},
		lists:        map[string]domain.List{},
		cards:        map[string]domain.Card{},
		listVersions: map[string]int64{},
		cardVersions: map[string]int64{},
	}
}

func (f *fakeRepo) CreateBoard(_ context.Context, b domain.Board) error {
	f.boards[b.ID] = b
	return nil
}

func (f *fakeRepo) UpdateBoard(_ context.Context, b domain.Board) error {
	if _, ok := f.boards[b.ID]; !ok {
		return ErrNotFound
	}
	f.boards[b.ID] = b
	return nil
}

func (f *fakeRepo) GetBoard(_ context.Context, id string) (domain.Board, error) {
	b, ok := f.boards[id]
	if !ok {
		return domain.Board{}, ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) ListBoards(_ context.Context, includeArchived bool) ([]domain.Board, error) {
	out := make([]domain.Board, 0, len(f.boards))
	for _, b := range f.boards {
		if !includeArchived && b.ArchivedAt != nil {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b domain.Board) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (f *fakeRepo) CreateList(_ context.Context, l domain.List) error {
	f.seq++
	l.CreatedSeq = f.seq
	f.lists[l.ID] = l
	f.listVersions[l.BoardID]++
	return nil
}

func (f *fakeRepo) UpdateList(_ context.Context, l domain.List) error {
	prev, ok := f.lists[l.ID]
	if !ok {
		return ErrNotFound
	}
	l.CreatedSeq = prev.CreatedSeq
	f.lists[l.ID] = l
	f.listVersions[prev.BoardID]++
	f.listVersions[l.BoardID]++
	return nil
}

func (f *fakeRepo) GetList(_ context.Context, id string) (domain.List, error) {
	l, ok := f.lists[id]
	if !ok {
		return domain.List{}, ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) ListLists(_ context.Context, boardID string, includeArchived bool) ([]domain.List, error) {
	out := make([]domain.List, 0, len(f.lists))
	for _, l := range f.lists {
		if l.BoardID != boardID {
			continue
		}
		if !includeArchived && l.ArchivedAt != nil {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeRepo) CreateCard(_ context.Context, c domain.Card) error {
	f.seq++
	c.CreatedSeq = f.seq
	f.cards[c.ID] = c
	f.cardVersions[c.ListID]++
	return nil
}

func (f *fakeRepo) UpdateCard(_ context.Context, c domain.Card) error {
	prev, ok := f.cards[c.ID]
	if !ok {
		return ErrNotFound
	}
	c.CreatedSeq = prev.CreatedSeq
	f.cards[c.ID] = c
	f.cardVersions[prev.ListID]++
	f.cardVersions[c.ListID]++
	return nil
}

func (f *fakeRepo) GetCard(_ context.Context, id string) (domain.Card, error) {
	c, ok := f.cards[id]
	if !ok {
		return domain.Card{}, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListCards(_ context.Context, boardID string, includeArchived bool) ([]domain.Card, error) {
	out := make([]domain.Card, 0, len(f.cards))
	for _, c := range f.cards {
		if c.BoardID != boardID {
			continue
		}
		if !includeArchived && c.ArchivedAt != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) DeleteCard(_ context.Context, id string) error {
	c, ok := f.cards[id]
	if !ok {
		return ErrNotFound
	}
	delete(f.cards, id)
	f.cardVersions[c.ListID]++
	return nil
}

func (f *fakeRepo) ListOrder(_ context.Context, boardID string) (OrderSnapshot, error) {
	snap := OrderSnapshot{ContainerID: boardID, Version: f.listVersions[boardID]}
	for _, l := range f.lists {
		if l.BoardID == boardID && l.ArchivedAt == nil {
			snap.Items = append(snap.Items, listEntity(l))
		}
	}
	snap.Items = ordering.Sort(snap.Items)
	return snap, nil
}

func (f *fakeRepo) CardOrder(_ context.Context, listID string) (OrderSnapshot, error) {
	snap := OrderSnapshot{ContainerID: listID, Version: f.cardVersions[listID]}
	for _, c := range f.cards {
		if c.ListID == listID && c.ArchivedAt == nil {
			snap.Items = append(snap.Items, cardEntity(c))
		}
	}
	snap.Items = ordering.Sort(snap.Items)
	return snap, nil
}

func (f *fakeRepo) takeConflict() bool {
	if f.conflicts > 0 {
		f.conflicts--
		return true
	}
	return false
}

func (f *fakeRepo) CommitListMove(_ context.Context, m ListMove) error {
	if f.takeConflict() || f.listVersions[m.FromBoardID] != m.FromVersion || f.listVersions[m.ToBoardID] != m.ToVersion {
		return ErrConflict
	}
	l := f.lists[m.ListID]
	if err := l.MoveTo(m.ToBoardID, m.Position, m.MovedAt); err != nil {
		return err
	}
	f.lists[l.ID] = l
	for id, c := range f.cards {
		if c.ListID == l.ID {
			c.BoardID = m.ToBoardID
			f.cards[id] = c
		}
	}
	f.listVersions[m.FromBoardID]++
	if m.ToBoardID != m.FromBoardID {
		f.listVersions[m.ToBoardID]++
	}
	f.moveCommits++
	return nil
}

func (f *fakeRepo) CommitCardMove(_ context.Context, m CardMove) error {
	if f.takeConflict() || f.cardVersions[m.FromListID] != m.FromVersion || f.cardVersions[m.ToListID] != m.ToVersion {
		return ErrConflict
	}
	c := f.cards[m.CardID]
	if err := c.MoveTo(m.ToListID, m.Position, m.MovedAt); err != nil {
		return err
	}
	f.cards[c.ID] = c
	f.cardVersions[m.FromListID]++
	if m.ToListID != m.FromListID {
		f.cardVersions[m.ToListID]++
	}
	f.moveCommits++
	return nil
}

func (f *fakeRepo) CommitRenormalize(_ context.Context, r Renormalization) error {
	versions := f.cardVersions
	if r.EntityType == domain.EntityTypeList {
		versions = f.listVersions
	}
	if versions[r.ContainerID] != r.ExpectedVersion {
		return ErrConflict
	}
	for _, item := range r.Items {
		switch r.EntityType {
		case domain.EntityTypeList:
			l := f.lists[item.ID]
			l.Position = item.Position
			f.lists[item.ID] = l
		default:
			c := f.cards[item.ID]
			c.Position = item.Position
			f.cards[item.ID] = c
		}
	}
	versions[r.ContainerID]++
	f.renormCount++
	return nil
}

func (f *fakeRepo) ListBoardChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error) {
	return nil, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (r *recordingSink) PublishChange(_ context.Context, event domain.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) operations() []domain.ChangeOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ChangeOperation, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.Operation)
	}
	return out
}

func intPtr(v int) *int {
	return &v
}

func sequentialIDs() IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// newBoardFixture builds one board with two lists and three cards in the first list.
func newBoardFixture(t *testing.T, cfg ServiceConfig) (*Service, *fakeRepo, domain.Board, []domain.List, []domain.Card) {
	t.Helper()
	repo := newFakeRepo()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc := NewService(repo, sequentialIDs(), func() time.Time { return now }, cfg)
	ctx := context.Background()

	board, err := svc.CreateBoard(ctx, CreateBoardInput{Name: "Roadmap"})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	lists := make([]domain.List, 0, 2)
	for _, name := range []string{"Todo", "Doing"} {
		list, err := svc.CreateList(ctx, CreateListInput{BoardID: board.ID, Name: name})
		if err != nil {
			t.Fatalf("CreateList(%q) error = %v", name, err)
		}
		lists = append(lists, list)
	}
	cards := make([]domain.Card, 0, 3)
	for _, title := range []string{"A", "B", "C"} {
		card, err := svc.CreateCard(ctx, CreateCardInput{ListID: lists[0].ID, Title: title})
		if err != nil {
			t.Fatalf("CreateCard(%q) error = %v", title, err)
		}
		cards = append(cards, card)
	}
	return svc, repo, board, lists, cards
}

func cardTitles(t *testing.T, svc *Service, boardID, listID string) []string {
	t.Helper()
	cards, err := svc.ListCards(context.Background(), boardID, false)
	if err != nil {
		t.Fatalf("ListCards() error = %v", err)
	}
	out := make([]string, 0)
	for _, card := range cards {
		if card.ListID == listID {
			out = append(out, card.Title)
		}
	}
	return out
}

func TestEnsureDefaultBoard(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, sequentialIDs(), func() time.Time {
		return time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	}, ServiceConfig{DefaultDeleteMode: DeleteModeArchive})

	board, err := svc.EnsureDefaultBoard(context.Background())
	if err != nil {
		t.Fatalf("EnsureDefaultBoard() error = %v", err)
	}
	if board.Name != "Inbox" {
		t.Fatalf("unexpected board name %q", board.Name)
	}
	lists, err := svc.ListLists(context.Background(), board.ID, false)
	if err != nil {
		t.Fatalf("ListLists() error = %v", err)
	}
	if len(lists) != 3 {
		t.Fatalf("expected 3 default lists, got %d", len(lists))
	}
	for i, want := range []string{"To Do", "In Progress", "Done"} {
		if lists[i].Name != want || lists[i].Position != float64(i+1) {
			t.Fatalf("list %d = %q@%v, want %q@%d", i, lists[i].Name, lists[i].Position, want, i+1)
		}
	}

	again, err := svc.EnsureDefaultBoard(context.Background())
	if err != nil {
		t.Fatalf("EnsureDefaultBoard() second call error = %v", err)
	}
	if again.ID != board.ID || len(repo.boards) != 1 {
		t.Fatalf("expected existing board to be reused, got %#v", again)
	}
}

func TestCreateBoardUsesConfiguredTemplates(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, sequentialIDs(), nil, ServiceConfig{
		AutoCreateBoardLists: true,
		ListTemplates:        []ListTemplate{{Name: " Backlog "}, {Name: "backlog"}, {Name: ""}, {Name: "Ship", WIPLimit: 2}},
	})

	board, err := svc.CreateBoard(context.Background(), CreateBoardInput{Name: "Launch"})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	lists, err := svc.ListLists(context.Background(), board.ID, false)
	if err != nil {
		t.Fatalf("ListLists() error = %v", err)
	}
	if len(lists) != 2 || lists[0].Name != "Backlog" || lists[1].Name != "Ship" || lists[1].WIPLimit != 2 {
		t.Fatalf("unexpected template lists %#v", lists)
	}
}

func TestCreateCardAppendsAtTail(t *testing.T) {
	_, _, _, _, cards := newBoardFixture(t, ServiceConfig{})
	for i, card := range cards {
		if card.Position != float64(i+1) {
			t.Fatalf("card %q position = %v, want %d", card.Title, card.Position, i+1)
		}
	}
}

func TestCreateCardRejectsArchivedList(t *testing.T) {
	svc, _, _, lists, _ := newBoardFixture(t, ServiceConfig{})
	if _, err := svc.ArchiveList(context.Background(), lists[1].ID); err != nil {
		t.Fatalf("ArchiveList() error = %v", err)
	}
	_, err := svc.CreateCard(context.Background(), CreateCardInput{ListID: lists[1].ID, Title: "late"})
	if !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
}

func TestMoveCardWithinList(t *testing.T) {
	sink := &recordingSink{}
	svc, _, board, lists, cards := newBoardFixture(t, ServiceConfig{Events: sink})

	moved, err := svc.MoveCard(context.Background(), MoveCardInput{
		CardID:    cards[2].ID,
		FromIndex: intPtr(2),
		ToIndex:   intPtr(0),
		ActorID:   "alice",
	})
	if err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if moved.Position != 0 {
		t.Fatalf("expected head position 0, got %v", moved.Position)
	}
	if got := cardTitles(t, svc, board.ID, lists[0].ID); !slices.Equal(got, []string{"C", "A", "B"}) {
		t.Fatalf("unexpected order %v", got)
	}

	last := sink.events[len(sink.events)-1]
	if last.Operation != domain.ChangeOperationMove || last.ActorID != "alice" || last.Metadata["to_index"] != "0" {
		t.Fatalf("unexpected move event %#v", last)
	}
}

func TestMoveCardBetweenNeighbors(t *testing.T) {
	svc, _, board, lists, cards := newBoardFixture(t, ServiceConfig{})

	moved, err := svc.MoveCard(context.Background(), MoveCardInput{CardID: cards[0].ID, FromIndex: intPtr(0), ToIndex: intPtr(1)})
	if err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if moved.Position != 2.5 {
		t.Fatalf("expected midpoint 2.5, got %v", moved.Position)
	}
	if got := cardTitles(t, svc, board.ID, lists[0].ID); !slices.Equal(got, []string{"B", "A", "C"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestMoveCardAcrossLists(t *testing.T) {
	svc, repo, board, lists, cards := newBoardFixture(t, ServiceConfig{})
	sourceVersion := repo.cardVersions[lists[0].ID]

	moved, err := svc.MoveCard(context.Background(), MoveCardInput{
		CardID:       cards[1].ID,
		ToIndex:      intPtr(5),
		TargetListID: lists[1].ID,
	})
	if err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if moved.ListID != lists[1].ID || moved.Position != 1 {
		t.Fatalf("expected card in target list at 1, got %#v", moved)
	}
	if repo.cardVersions[lists[0].ID] == sourceVersion {
		t.Fatal("expected source list version to change")
	}
	if got := cardTitles(t, svc, board.ID, lists[0].ID); !slices.Equal(got, []string{"A", "C"}) {
		t.Fatalf("unexpected source order %v", got)
	}
	if got := cardTitles(t, svc, board.ID, lists[1].ID); !slices.Equal(got, []string{"B"}) {
		t.Fatalf("unexpected target order %v", got)
	}
}

func TestMoveCardNoOpSkipsWrite(t *testing.T) {
	sink := &recordingSink{}
	svc, repo, _, _, cards := newBoardFixture(t, ServiceConfig{Events: sink})
	before := len(sink.events)

	moved, err := svc.MoveCard(context.Background(), MoveCardInput{CardID: cards[1].ID, FromIndex: intPtr(1), ToIndex: intPtr(1)})
	if err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if moved.Position != cards[1].Position {
		t.Fatalf("expected unchanged position %v, got %v", cards[1].Position, moved.Position)
	}
	if repo.moveCommits != 0 || len(sink.events) != before {
		t.Fatalf("expected no write and no event, commits=%d events=%d", repo.moveCommits, len(sink.events)-before)
	}
}

func TestMoveCardRequiresTargetIndex(t *testing.T) {
	svc, repo, _, _, cards := newBoardFixture(t, ServiceConfig{})

	_, err := svc.MoveCard(context.Background(), MoveCardInput{CardID: cards[0].ID, FromIndex: intPtr(0)})
	if !errors.Is(err, ErrInvalidMove) || !errors.Is(err, ordering.ErrMissingTargetIndex) {
		t.Fatalf("expected invalid move with missing target index, got %v", err)
	}
	if repo.moveCommits != 0 {
		t.Fatalf("expected no commits, got %d", repo.moveCommits)
	}
}

func TestMoveCardRejectsListOnAnotherBoard(t *testing.T) {
	svc, _, _, _, cards := newBoardFixture(t, ServiceConfig{})
	other, err := svc.CreateBoard(context.Background(), CreateBoardInput{Name: "Other"})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	foreign, err := svc.CreateList(context.Background(), CreateListInput{BoardID: other.ID, Name: "Elsewhere"})
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}

	_, err = svc.MoveCard(context.Background(), MoveCardInput{CardID: cards[0].ID, ToIndex: intPtr(0), TargetListID: foreign.ID})
	if !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
}

func TestMoveCardUnknownCard(t *testing.T) {
	svc, _, _, _, _ := newBoardFixture(t, ServiceConfig{})
	_, err := svc.MoveCard(context.Background(), MoveCardInput{CardID: "missing", ToIndex: intPtr(0)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMoveCardRetriesOnConflict(t *testing.T) {
	svc, repo, board, lists, cards := newBoardFixture(t, ServiceConfig{})
	repo.conflicts = 2

	if _, err := svc.MoveCard(context.Background(), MoveCardInput{CardID: cards[0].ID, FromIndex: intPtr(0), ToIndex: intPtr(2)}); err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if repo.moveCommits != 1 {
		t.Fatalf("expected exactly one successful commit, got %d", repo.moveCommits)
	}
	if got := cardTitles(t, svc, board.ID, lists[0].ID); !slices.Equal(got, []string{"B", "C", "A"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestMoveCardConflictSurfacesAfterRetries(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		conflicts int
	}{
		{name: "default retries exhausted", retries: 0, conflicts: DefaultMaxMoveRetries + 1},
		{name: "retries disabled", retries: -1, conflicts: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _, _, cards := newBoardFixture(t, ServiceConfig{MaxMoveRetries: tc.retries})
			repo.conflicts = tc.conflicts

			_, err := svc.MoveCard(context.Background(), MoveCardInput{CardID: cards[0].ID, ToIndex: intPtr(2)})
			if !errors.Is(err, ErrConflict) {
				t.Fatalf("expected ErrConflict, got %v", err)
			}
			if repo.conflicts != 0 || repo.moveCommits != 0 {
				t.Fatalf("unexpected repo state conflicts=%d commits=%d", repo.conflicts, repo.moveCommits)
			}
		})
	}
}

func TestMoveCardRenormalizesExhaustedGap(t *testing.T) {
	sink := &recordingSink{}
	svc, repo, board, lists, cards := newBoardFixture(t, ServiceConfig{Events: sink})
	b := repo.cards[cards[1].ID]
	b.Position = 1 + 1e-9
	repo.cards[b.ID] = b

	moved, err := svc.MoveCard(context.Background(), MoveCardInput{CardID: cards[2].ID, FromIndex: intPtr(2), ToIndex: intPtr(1)})
	if err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if repo.renormCount != 1 {
		t.Fatalf("expected one renormalization, got %d", repo.renormCount)
	}
	if moved.Position != 1.5 {
		t.Fatalf("expected 1.5 after renormalization, got %v", moved.Position)
	}
	if got := cardTitles(t, svc, board.ID, lists[0].ID); !slices.Equal(got, []string{"A", "C", "B"}) {
		t.Fatalf("unexpected order %v", got)
	}
	ops := sink.operations()
	if !slices.Equal(ops[len(ops)-2:], []domain.ChangeOperation{domain.ChangeOperationRenormalize, domain.ChangeOperationMove}) {
		t.Fatalf("unexpected trailing events %v", ops)
	}
}

func TestMoveListWithinBoard(t *testing.T) {
	svc, _, board, lists, _ := newBoardFixture(t, ServiceConfig{})

	moved, err := svc.MoveList(context.Background(), MoveListInput{ListID: lists[1].ID, FromIndex: intPtr(1), ToIndex: intPtr(0)})
	if err != nil {
		t.Fatalf("MoveList() error = %v", err)
	}
	if moved.Position != 0 {
		t.Fatalf("expected head position 0, got %v", moved.Position)
	}
	ordered, err := svc.ListLists(context.Background(), board.ID, false)
	if err != nil {
		t.Fatalf("ListLists() error = %v", err)
	}
	if ordered[0].ID != lists[1].ID || ordered[1].ID != lists[0].ID {
		t.Fatalf("unexpected list order %#v", ordered)
	}
}

func TestMoveListAcrossBoardsCarriesCards(t *testing.T) {
	svc, repo, board, lists, cards := newBoardFixture(t, ServiceConfig{})
	other, err := svc.CreateBoard(context.Background(), CreateBoardInput{Name: "Archive board"})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}

	moved, err := svc.MoveList(context.Background(), MoveListInput{ListID: lists[0].ID, ToIndex: intPtr(0), TargetBoardID: other.ID})
	if err != nil {
		t.Fatalf("MoveList() error = %v", err)
	}
	if moved.BoardID != other.ID || moved.Position != 1 {
		t.Fatalf("unexpected moved list %#v", moved)
	}
	if repo.cards[cards[0].ID].BoardID != other.ID {
		t.Fatalf("expected cards to follow list to new board")
	}
	remaining, err := svc.ListLists(context.Background(), board.ID, false)
	if err != nil {
		t.Fatalf("ListLists() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != lists[1].ID {
		t.Fatalf("unexpected source board lists %#v", remaining)
	}
}

func TestMoveListRequiresTargetIndex(t *testing.T) {
	svc, _, _, lists, _ := newBoardFixture(t, ServiceConfig{})
	_, err := svc.MoveList(context.Background(), MoveListInput{ListID: lists[0].ID})
	if !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
}

func TestDeleteAndRestoreCard(t *testing.T) {
	svc, repo, board, lists, cards := newBoardFixture(t, ServiceConfig{})
	ctx := context.Background()

	if err := svc.DeleteCard(ctx, cards[0].ID, ""); err != nil {
		t.Fatalf("DeleteCard(archive) error = %v", err)
	}
	if repo.cards[cards[0].ID].ArchivedAt == nil {
		t.Fatal("expected default delete mode to archive")
	}
	restored, err := svc.RestoreCard(ctx, cards[0].ID)
	if err != nil {
		t.Fatalf("RestoreCard() error = %v", err)
	}
	if restored.ArchivedAt != nil || restored.Position != 4 {
		t.Fatalf("expected restore at tail position 4, got %#v", restored)
	}
	if got := cardTitles(t, svc, board.ID, lists[0].ID); !slices.Equal(got, []string{"B", "C", "A"}) {
		t.Fatalf("unexpected order %v", got)
	}

	if err := svc.DeleteCard(ctx, cards[1].ID, DeleteModeHard); err != nil {
		t.Fatalf("DeleteCard(hard) error = %v", err)
	}
	if _, ok := repo.cards[cards[1].ID]; ok {
		t.Fatal("expected hard delete to remove card")
	}
	if err := svc.DeleteCard(ctx, cards[2].ID, DeleteMode("shred")); !errors.Is(err, ErrInvalidDeleteMode) {
		t.Fatalf("expected ErrInvalidDeleteMode, got %v", err)
	}
}

func TestUpdateCardKeepsPriorityWhenBlank(t *testing.T) {
	svc, _, _, _, cards := newBoardFixture(t, ServiceConfig{})

	updated, err := svc.UpdateCard(context.Background(), UpdateCardInput{
		CardID: cards[0].ID,
		Title:  "A renamed",
		Labels: []string{"Bug", "bug", " ui "},
	})
	if err != nil {
		t.Fatalf("UpdateCard() error = %v", err)
	}
	if updated.Title != "A renamed" || updated.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected updated card %#v", updated)
	}
	if !slices.Equal(updated.Labels, []string{"bug", "ui"}) {
		t.Fatalf("unexpected labels %v", updated.Labels)
	}
}

func TestGetBoardViewOrdersListsAndCards(t *testing.T) {
	svc, _, board, lists, cards := newBoardFixture(t, ServiceConfig{})
	ctx := context.Background()
	if _, err := svc.MoveCard(ctx, MoveCardInput{CardID: cards[2].ID, ToIndex: intPtr(0), TargetListID: lists[1].ID}); err != nil {
		t.Fatalf("MoveCard() error = %v", err)
	}
	if _, err := svc.MoveList(ctx, MoveListInput{ListID: lists[1].ID, FromIndex: intPtr(1), ToIndex: intPtr(0)}); err != nil {
		t.Fatalf("MoveList() error = %v", err)
	}

	view, err := svc.GetBoardView(ctx, board.ID, false)
	if err != nil {
		t.Fatalf("GetBoardView() error = %v", err)
	}
	if len(view.Lists) != 2 || view.Lists[0].List.ID != lists[1].ID {
		t.Fatalf("unexpected list order %#v", view.Lists)
	}
	if len(view.Lists[0].Cards) != 1 || view.Lists[0].Cards[0].ID != cards[2].ID {
		t.Fatalf("unexpected first list cards %#v", view.Lists[0].Cards)
	}
	if len(view.Lists[1].Cards) != 2 || view.Lists[1].Cards[0].Title != "A" {
		t.Fatalf("unexpected second list cards %#v", view.Lists[1].Cards)
	}
}

func TestListBoardChangeEventsRequiresBoard(t *testing.T) {
	svc := NewService(newFakeRepo(), nil, nil, ServiceConfig{})
	if _, err := svc.ListBoardChangeEvents(context.Background(), "  ", 10); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

// failingListRepo fails list creation after a fixed number of successes.
type failingListRepo struct {
	*fakeRepo
	remaining int
}

func (f *failingListRepo) CreateList(ctx context.Context, l domain.List) error {
	if f.remaining == 0 {
		return errors.New("disk full")
	}
	f.remaining--
	return f.fakeRepo.CreateList(ctx, l)
}

func TestCreateBoardArchivesBoardWhenTemplateListsFail(t *testing.T) {
	repo := &failingListRepo{fakeRepo: newFakeRepo(), remaining: 1}
	svc := NewService(repo, sequentialIDs(), nil, ServiceConfig{AutoCreateBoardLists: true})
	ctx := context.Background()

	if _, err := svc.CreateBoard(ctx, CreateBoardInput{Name: "Launch"}); err == nil {
		t.Fatal("CreateBoard() error = nil, want template list failure")
	}
	if _, err := svc.EnsureDefaultBoard(ctx); err == nil {
		t.Fatal("EnsureDefaultBoard() error = nil, want template list failure")
	}
	if len(repo.boards) != 2 {
		t.Fatalf("expected both boards to be stored, got %d", len(repo.boards))
	}
	for id, board := range repo.boards {
		if board.ArchivedAt == nil {
			t.Fatalf("board %q left active with partial lists", id)
		}
	}
	active, err := svc.ListBoards(ctx, false)
	if err != nil {
		t.Fatalf("ListBoards() error = %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active boards, got %#v", active)
	}
}

func TestRestoreCardRejectsArchivedList(t *testing.T) {
	svc, repo, _, lists, cards := newBoardFixture(t, ServiceConfig{})
	ctx := context.Background()

	if err := svc.DeleteCard(ctx, cards[0].ID, DeleteModeArchive); err != nil {
		t.Fatalf("DeleteCard() error = %v", err)
	}
	if _, err := svc.ArchiveList(ctx, lists[0].ID); err != nil {
		t.Fatalf("ArchiveList() error = %v", err)
	}
	if _, err := svc.RestoreCard(ctx, cards[0].ID); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
	if repo.cards[cards[0].ID].ArchivedAt == nil {
		t.Fatal("expected card to stay archived")
	}
}

func TestListCardsGroupsByListPosition(t *testing.T) {
	svc, _, board, lists, _ := newBoardFixture(t, ServiceConfig{})
	ctx := context.Background()

	if _, err := svc.CreateCard(ctx, CreateCardInput{ListID: lists[1].ID, Title: "D"}); err != nil {
		t.Fatalf("CreateCard() error = %v", err)
	}
	if _, err := svc.MoveList(ctx, MoveListInput{ListID: lists[1].ID, ToIndex: intPtr(0)}); err != nil {
		t.Fatalf("MoveList() error = %v", err)
	}
	cards, err := svc.ListCards(ctx, board.ID, false)
	if err != nil {
		t.Fatalf("ListCards() error = %v", err)
	}
	got := make([]string, 0, len(cards))
	for _, card := range cards {
		got = append(got, card.Title)
	}
	if !slices.Equal(got, []string{"D", "A", "B", "C"}) {
		t.Fatalf("ListCards() order = %v, want [D A B C]", got)
	}
}

func TestEditOperationsPublishChanges(t *testing.T) {
	sink := &recordingSink{}
	svc, _, board, lists, cards := newBoardFixture(t, ServiceConfig{Events: sink})
	ctx := WithActor(context.Background(), "dana")
	before := len(sink.events)

	if _, err := svc.UpdateBoard(ctx, UpdateBoardInput{BoardID: board.ID, Name: "Roadmap 2"}); err != nil {
		t.Fatalf("UpdateBoard() error = %v", err)
	}
	if _, err := svc.RenameList(ctx, lists[1].ID, "Review"); err != nil {
		t.Fatalf("RenameList() error = %v", err)
	}
	if _, err := svc.UpdateCard(ctx, UpdateCardInput{CardID: cards[0].ID, Title: "A2"}); err != nil {
		t.Fatalf("UpdateCard() error = %v", err)
	}
	if err := svc.DeleteCard(ctx, cards[1].ID, DeleteModeHard); err != nil {
		t.Fatalf("DeleteCard() error = %v", err)
	}

	got := sink.operations()[before:]
	want := []domain.ChangeOperation{
		domain.ChangeOperationUpdate,
		domain.ChangeOperationUpdate,
		domain.ChangeOperationUpdate,
		domain.ChangeOperationDelete,
	}
	if !slices.Equal(got, want) {
		t.Fatalf("operations = %v, want %v", got, want)
	}
	for _, event := range sink.events[before:] {
		if event.ActorID != "dana" || event.BoardID != board.ID {
			t.Fatalf("unexpected event attribution %#v", event)
		}
	}
}
