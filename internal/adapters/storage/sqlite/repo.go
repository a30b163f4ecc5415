package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/domain"
	"github.com/hylla/slate/internal/ordering"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// defaultActorID is recorded when a write carries no actor.
const defaultActorID = "slate-user"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

var _ app.Repository = (*Repository)(nil)

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database that lives as long as its single connection.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

// newRepository pins the pool to one connection so pragmas stick and writers serialize.
func newRepository(db *sql.DB) (*Repository, error) {
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			lists_version INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS lists (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			name TEXT NOT NULL,
			wip_limit INTEGER NOT NULL DEFAULT 0,
			position REAL NOT NULL,
			created_seq INTEGER NOT NULL DEFAULT 0,
			cards_version INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			list_id TEXT NOT NULL,
			position REAL NOT NULL,
			created_seq INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			due_at TEXT,
			labels_json TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			archived_at TEXT,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE,
			FOREIGN KEY(list_id) REFERENCES lists(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			board_id TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			FOREIGN KEY(board_id) REFERENCES boards(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lists_board_position ON lists(board_id, position, created_seq, id);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_list_position ON cards(list_id, position, created_seq, id);`,
		`CREATE INDEX IF NOT EXISTS idx_cards_board ON cards(board_id);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_board_created_at ON change_events(board_id, created_at DESC, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateBoard creates board.
func (r *Repository) CreateBoard(ctx context.Context, b domain.Board) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO boards(id, slug, name, description, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Slug, b.Name, b.Description, ts(b.CreatedAt), ts(b.UpdatedAt), nullableTS(b.ArchivedAt))
	return err
}

// UpdateBoard updates state for the requested operation.
func (r *Repository) UpdateBoard(ctx context.Context, b domain.Board) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := scanBoard(tx.QueryRowContext(ctx, boardSelect+` WHERE id = ?`, b.ID))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE boards
		SET slug = ?, name = ?, description = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, b.Slug, b.Name, b.Description, ts(b.UpdatedAt), nullableTS(b.ArchivedAt), b.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}

	op := classifyArchiveTransition(prev.ArchivedAt, b.ArchivedAt)
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    b.ID,
		EntityType: domain.EntityTypeBoard,
		EntityID:   b.ID,
		Operation:  op,
		Metadata:   map[string]string{"name": b.Name},
		OccurredAt: b.UpdatedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// boardSelect is the shared board projection.
const boardSelect = `
	SELECT id, slug, name, description, created_at, updated_at, archived_at
	FROM boards`

// GetBoard returns board.
func (r *Repository) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	return scanBoard(r.db.QueryRowContext(ctx, boardSelect+` WHERE id = ?`, id))
}

// ListBoards lists boards.
func (r *Repository) ListBoards(ctx context.Context, includeArchived bool) ([]domain.Board, error) {
	query := boardSelect
	if !includeArchived {
		query += ` WHERE archived_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// listSelect is the shared list projection.
const listSelect = `
	SELECT id, board_id, name, wip_limit, position, created_seq, created_at, updated_at, archived_at
	FROM lists`

// CreateList creates list.
func (r *Repository) CreateList(ctx context.Context, l domain.List) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lists(id, board_id, name, wip_limit, position, created_seq, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM lists), ?, ?, ?)
	`, l.ID, l.BoardID, l.Name, l.WIPLimit, l.Position, ts(l.CreatedAt), ts(l.UpdatedAt), nullableTS(l.ArchivedAt))
	if err != nil {
		return err
	}
	if err = bumpListsVersion(ctx, tx, l.BoardID); err != nil {
		return err
	}
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    l.BoardID,
		EntityType: domain.EntityTypeList,
		EntityID:   l.ID,
		Operation:  domain.ChangeOperationCreate,
		Metadata:   map[string]string{"name": l.Name, "position": formatPosition(l.Position)},
		OccurredAt: l.CreatedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// UpdateList writes every list column. Order-affecting changes bump the board's list version.
func (r *Repository) UpdateList(ctx context.Context, l domain.List) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := scanList(tx.QueryRowContext(ctx, listSelect+` WHERE id = ?`, l.ID))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE lists
		SET board_id = ?, name = ?, wip_limit = ?, position = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`, l.BoardID, l.Name, l.WIPLimit, l.Position, ts(l.UpdatedAt), nullableTS(l.ArchivedAt), l.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if listOrderChanged(prev, l) {
		if err = bumpListsVersion(ctx, tx, prev.BoardID); err != nil {
			return err
		}
		if prev.BoardID != l.BoardID {
			if err = bumpListsVersion(ctx, tx, l.BoardID); err != nil {
				return err
			}
		}
	}

	op, metadata := classifyListTransition(prev, l)
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    l.BoardID,
		EntityType: domain.EntityTypeList,
		EntityID:   l.ID,
		Operation:  op,
		Metadata:   metadata,
		OccurredAt: l.UpdatedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// GetList returns list.
func (r *Repository) GetList(ctx context.Context, id string) (domain.List, error) {
	return scanList(r.db.QueryRowContext(ctx, listSelect+` WHERE id = ?`, id))
}

// ListLists lists a board's lists in display order.
func (r *Repository) ListLists(ctx context.Context, boardID string, includeArchived bool) ([]domain.List, error) {
	query := listSelect + ` WHERE board_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY position ASC, created_seq ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// cardSelect is the shared card projection.
const cardSelect = `
	SELECT id, board_id, list_id, position, created_seq, title, description, priority, due_at, labels_json, created_at, updated_at, archived_at
	FROM cards`

// CreateCard creates card.
func (r *Repository) CreateCard(ctx context.Context, c domain.Card) error {
	labelsJSON, err := json.Marshal(c.Labels)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards(id, board_id, list_id, position, created_seq, title, description, priority, due_at, labels_json, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(created_seq), 0) + 1 FROM cards), ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.BoardID,
		c.ListID,
		c.Position,
		c.Title,
		c.Description,
		string(c.Priority),
		nullableTS(c.DueAt),
		string(labelsJSON),
		ts(c.CreatedAt),
		ts(c.UpdatedAt),
		nullableTS(c.ArchivedAt),
	)
	if err != nil {
		return err
	}
	if err = bumpCardsVersion(ctx, tx, c.ListID); err != nil {
		return err
	}
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    c.BoardID,
		EntityType: domain.EntityTypeCard,
		EntityID:   c.ID,
		Operation:  domain.ChangeOperationCreate,
		Metadata: map[string]string{
			"list_id":  c.ListID,
			"position": formatPosition(c.Position),
			"title":    c.Title,
		},
		OccurredAt: c.CreatedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// UpdateCard writes every card column. Order-affecting changes bump the touched lists' card versions.
func (r *Repository) UpdateCard(ctx context.Context, c domain.Card) error {
	labelsJSON, err := json.Marshal(c.Labels)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := scanCard(tx.QueryRowContext(ctx, cardSelect+` WHERE id = ?`, c.ID))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE cards
		SET board_id = ?, list_id = ?, position = ?, title = ?, description = ?, priority = ?, due_at = ?,
		    labels_json = ?, updated_at = ?, archived_at = ?
		WHERE id = ?
	`,
		c.BoardID,
		c.ListID,
		c.Position,
		c.Title,
		c.Description,
		string(c.Priority),
		nullableTS(c.DueAt),
		string(labelsJSON),
		ts(c.UpdatedAt),
		nullableTS(c.ArchivedAt),
		c.ID,
	)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if cardOrderChanged(prev, c) {
		if err = bumpCardsVersion(ctx, tx, prev.ListID); err != nil {
			return err
		}
		if prev.ListID != c.ListID {
			if err = bumpCardsVersion(ctx, tx, c.ListID); err != nil {
				return err
			}
		}
	}

	op, metadata := classifyCardTransition(prev, c)
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    c.BoardID,
		EntityType: domain.EntityTypeCard,
		EntityID:   c.ID,
		Operation:  op,
		Metadata:   metadata,
		OccurredAt: c.UpdatedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// GetCard returns card.
func (r *Repository) GetCard(ctx context.Context, id string) (domain.Card, error) {
	return scanCard(r.db.QueryRowContext(ctx, cardSelect+` WHERE id = ?`, id))
}

// ListCards lists a board's cards grouped by list in display order.
func (r *Repository) ListCards(ctx context.Context, boardID string, includeArchived bool) ([]domain.Card, error) {
	query := cardSelect + ` WHERE board_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY list_id ASC, position ASC, created_seq ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, boardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCard deletes card.
func (r *Repository) DeleteCard(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	card, err := scanCard(tx.QueryRowContext(ctx, cardSelect+` WHERE id = ?`, id))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if err = bumpCardsVersion(ctx, tx, card.ListID); err != nil {
		return err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    card.BoardID,
		EntityType: domain.EntityTypeCard,
		EntityID:   card.ID,
		Operation:  domain.ChangeOperationDelete,
		Metadata: map[string]string{
			"list_id":  card.ListID,
			"position": formatPosition(card.Position),
			"title":    card.Title,
		},
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// ListOrder reads a board's active lists together with its list-order version.
func (r *Repository) ListOrder(ctx context.Context, boardID string) (app.OrderSnapshot, error) {
	return r.orderSnapshot(ctx, boardID,
		`SELECT lists_version FROM boards WHERE id = ?`,
		`SELECT id, position, board_id, created_seq FROM lists
		 WHERE board_id = ? AND archived_at IS NULL
		 ORDER BY position ASC, created_seq ASC, id ASC`,
	)
}

// CardOrder reads a list's active cards together with its card-order version.
func (r *Repository) CardOrder(ctx context.Context, listID string) (app.OrderSnapshot, error) {
	return r.orderSnapshot(ctx, listID,
		`SELECT cards_version FROM lists WHERE id = ?`,
		`SELECT id, position, list_id, created_seq FROM cards
		 WHERE list_id = ? AND archived_at IS NULL
		 ORDER BY position ASC, created_seq ASC, id ASC`,
	)
}

// orderSnapshot reads one version row and its ordered children in a single transaction.
func (r *Repository) orderSnapshot(ctx context.Context, containerID, versionQuery, itemsQuery string) (app.OrderSnapshot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return app.OrderSnapshot{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	snap := app.OrderSnapshot{ContainerID: containerID, Items: []ordering.PositionedEntity{}}
	if err := tx.QueryRowContext(ctx, versionQuery, containerID).Scan(&snap.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return app.OrderSnapshot{}, app.ErrNotFound
		}
		return app.OrderSnapshot{}, err
	}
	rows, err := tx.QueryContext(ctx, itemsQuery, containerID)
	if err != nil {
		return app.OrderSnapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item ordering.PositionedEntity
		if err := rows.Scan(&item.ID, &item.Position, &item.ContainerID, &item.Seq); err != nil {
			return app.OrderSnapshot{}, err
		}
		snap.Items = append(snap.Items, item)
	}
	if err := rows.Err(); err != nil {
		return app.OrderSnapshot{}, err
	}
	return snap, nil
}

// CommitListMove writes one list position after checking the expected board versions.
func (r *Repository) CommitListMove(ctx context.Context, m app.ListMove) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := scanList(tx.QueryRowContext(ctx, listSelect+` WHERE id = ?`, m.ListID))
	if err != nil {
		return err
	}
	if prev.BoardID != m.FromBoardID {
		err = fmt.Errorf("list %q left board %q: %w", m.ListID, m.FromBoardID, app.ErrConflict)
		return err
	}
	if err = casListsVersion(ctx, tx, m.FromBoardID, m.FromVersion); err != nil {
		return err
	}
	if m.ToBoardID != m.FromBoardID {
		if err = casListsVersion(ctx, tx, m.ToBoardID, m.ToVersion); err != nil {
			return err
		}
	}

	movedAt := normalizeEventTS(m.MovedAt)
	if _, err = tx.ExecContext(ctx, `
		UPDATE lists SET board_id = ?, position = ?, updated_at = ? WHERE id = ?
	`, m.ToBoardID, m.Position, ts(movedAt), m.ListID); err != nil {
		return err
	}
	if m.ToBoardID != m.FromBoardID {
		if _, err = tx.ExecContext(ctx, `UPDATE cards SET board_id = ? WHERE list_id = ?`, m.ToBoardID, m.ListID); err != nil {
			return err
		}
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    m.ToBoardID,
		EntityType: domain.EntityTypeList,
		EntityID:   m.ListID,
		Operation:  domain.ChangeOperationMove,
		ActorID:    m.ActorID,
		Metadata: map[string]string{
			"from_board_id": m.FromBoardID,
			"to_board_id":   m.ToBoardID,
			"from_position": formatPosition(prev.Position),
			"to_position":   formatPosition(m.Position),
		},
		OccurredAt: movedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// CommitCardMove writes one card position after checking the expected list versions.
func (r *Repository) CommitCardMove(ctx context.Context, m app.CardMove) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := scanCard(tx.QueryRowContext(ctx, cardSelect+` WHERE id = ?`, m.CardID))
	if err != nil {
		return err
	}
	if prev.ListID != m.FromListID {
		err = fmt.Errorf("card %q left list %q: %w", m.CardID, m.FromListID, app.ErrConflict)
		return err
	}
	if err = casCardsVersion(ctx, tx, m.FromListID, m.FromVersion); err != nil {
		return err
	}
	if m.ToListID != m.FromListID {
		if err = casCardsVersion(ctx, tx, m.ToListID, m.ToVersion); err != nil {
			return err
		}
	}

	movedAt := normalizeEventTS(m.MovedAt)
	if _, err = tx.ExecContext(ctx, `
		UPDATE cards SET list_id = ?, position = ?, updated_at = ? WHERE id = ?
	`, m.ToListID, m.Position, ts(movedAt), m.CardID); err != nil {
		return err
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    prev.BoardID,
		EntityType: domain.EntityTypeCard,
		EntityID:   m.CardID,
		Operation:  domain.ChangeOperationMove,
		ActorID:    m.ActorID,
		Metadata: map[string]string{
			"from_list_id":  m.FromListID,
			"to_list_id":    m.ToListID,
			"from_position": formatPosition(prev.Position),
			"to_position":   formatPosition(m.Position),
		},
		OccurredAt: movedAt,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// CommitRenormalize rewrites every position in one container under its expected version.
func (r *Repository) CommitRenormalize(ctx context.Context, rn app.Renormalization) error {
	var (
		casFn  func(context.Context, *sql.Tx, string, int64) error
		update string
	)
	switch rn.EntityType {
	case domain.EntityTypeList:
		casFn = casListsVersion
		update = `UPDATE lists SET position = ? WHERE id = ? AND board_id = ?`
	case domain.EntityTypeCard:
		casFn = casCardsVersion
		update = `UPDATE cards SET position = ? WHERE id = ? AND list_id = ?`
	default:
		return domain.ErrInvalidEntityType
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = casFn(ctx, tx, rn.ContainerID, rn.ExpectedVersion); err != nil {
		return err
	}
	for _, item := range rn.Items {
		var res sql.Result
		res, err = tx.ExecContext(ctx, update, item.Position, item.ID, rn.ContainerID)
		if err != nil {
			return err
		}
		if err = translateNoRows(res); err != nil {
			err = fmt.Errorf("renormalize %s %q: %w", rn.EntityType, item.ID, app.ErrConflict)
			return err
		}
	}

	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		BoardID:    rn.BoardID,
		EntityType: rn.EntityType,
		EntityID:   rn.ContainerID,
		Operation:  domain.ChangeOperationRenormalize,
		ActorID:    rn.ActorID,
		Metadata: map[string]string{
			"container_id": rn.ContainerID,
			"count":        strconv.Itoa(len(rn.Items)),
		},
		OccurredAt: rn.At,
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// ListBoardChangeEvents lists board change events newest first.
func (r *Repository) ListBoardChangeEvents(ctx context.Context, boardID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, entity_type, entity_id, operation, actor_id, metadata_json, created_at
		FROM change_events
		WHERE board_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, boardID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			entityRaw   string
			opRaw       string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.BoardID, &entityRaw, &event.EntityID, &opRaw, &event.ActorID, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		entityType, err := domain.NormalizeEntityType(domain.EntityType(entityRaw))
		if err != nil {
			return nil, fmt.Errorf("decode change_events.entity_type %q: %w", entityRaw, err)
		}
		event.EntityType = entityType
		event.Operation = normalizeChangeOperation(opRaw)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// bumpListsVersion increments a board's list-order version unconditionally.
func bumpListsVersion(ctx context.Context, execer execerContext, boardID string) error {
	res, err := execer.ExecContext(ctx, `UPDATE boards SET lists_version = lists_version + 1 WHERE id = ?`, boardID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// bumpCardsVersion increments a list's card-order version unconditionally.
func bumpCardsVersion(ctx context.Context, execer execerContext, listID string) error {
	res, err := execer.ExecContext(ctx, `UPDATE lists SET cards_version = cards_version + 1 WHERE id = ?`, listID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// casListsVersion increments a board's list-order version only if it still equals expected.
func casListsVersion(ctx context.Context, tx *sql.Tx, boardID string, expected int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE boards SET lists_version = lists_version + 1 WHERE id = ? AND lists_version = ?
	`, boardID, expected)
	if err != nil {
		return err
	}
	return translateStale(res, "board", boardID)
}

// casCardsVersion increments a list's card-order version only if it still equals expected.
func casCardsVersion(ctx context.Context, tx *sql.Tx, listID string, expected int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE lists SET cards_version = cards_version + 1 WHERE id = ? AND cards_version = ?
	`, listID, expected)
	if err != nil {
		return err
	}
	return translateStale(res, "list", listID)
}

// insertChangeEvent inserts a change-event ledger record.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(board_id, entity_type, entity_id, operation, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.BoardID,
		string(event.EntityType),
		event.EntityID,
		string(event.Operation),
		chooseActorID(event.ActorID, defaultActorID),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// classifyArchiveTransition maps archived_at changes to an operation.
func classifyArchiveTransition(prev, next *time.Time) domain.ChangeOperation {
	switch {
	case prev == nil && next != nil:
		return domain.ChangeOperationArchive
	case prev != nil && next == nil:
		return domain.ChangeOperationRestore
	default:
		return domain.ChangeOperationUpdate
	}
}

// classifyListTransition derives the operation category and metadata for a list update.
func classifyListTransition(prev, next domain.List) (domain.ChangeOperation, map[string]string) {
	if op := classifyArchiveTransition(prev.ArchivedAt, next.ArchivedAt); op != domain.ChangeOperationUpdate {
		return op, map[string]string{"name": next.Name}
	}
	if prev.BoardID != next.BoardID || prev.Position != next.Position {
		return domain.ChangeOperationMove, map[string]string{
			"from_board_id": prev.BoardID,
			"to_board_id":   next.BoardID,
			"from_position": formatPosition(prev.Position),
			"to_position":   formatPosition(next.Position),
		}
	}
	changed := make([]string, 0, 2)
	if prev.Name != next.Name {
		changed = append(changed, "name")
	}
	if prev.WIPLimit != next.WIPLimit {
		changed = append(changed, "wip_limit")
	}
	metadata := map[string]string{}
	if len(changed) > 0 {
		metadata["changed_fields"] = strings.Join(changed, ",")
	}
	return domain.ChangeOperationUpdate, metadata
}

// classifyCardTransition derives the operation category and metadata for a card update.
func classifyCardTransition(prev, next domain.Card) (domain.ChangeOperation, map[string]string) {
	if op := classifyArchiveTransition(prev.ArchivedAt, next.ArchivedAt); op != domain.ChangeOperationUpdate {
		return op, map[string]string{"list_id": next.ListID, "title": next.Title}
	}
	if prev.ListID != next.ListID || prev.Position != next.Position {
		return domain.ChangeOperationMove, map[string]string{
			"from_list_id":  prev.ListID,
			"to_list_id":    next.ListID,
			"from_position": formatPosition(prev.Position),
			"to_position":   formatPosition(next.Position),
		}
	}
	metadata := map[string]string{}
	if fields := changedCardFields(prev, next); len(fields) > 0 {
		metadata["changed_fields"] = strings.Join(fields, ",")
	}
	return domain.ChangeOperationUpdate, metadata
}

// changedCardFields identifies a deterministic set of meaningful changes for metadata.
func changedCardFields(prev, next domain.Card) []string {
	changed := make([]string, 0)
	if prev.Title != next.Title {
		changed = append(changed, "title")
	}
	if prev.Description != next.Description {
		changed = append(changed, "description")
	}
	if prev.Priority != next.Priority {
		changed = append(changed, "priority")
	}
	if !equalNullableTimes(prev.DueAt, next.DueAt) {
		changed = append(changed, "due_at")
	}
	if !equalStringSlices(prev.Labels, next.Labels) {
		changed = append(changed, "labels")
	}
	return changed
}

// listOrderChanged reports whether an update affects its board's list order.
func listOrderChanged(prev, next domain.List) bool {
	return prev.BoardID != next.BoardID || prev.Position != next.Position || (prev.ArchivedAt == nil) != (next.ArchivedAt == nil)
}

// cardOrderChanged reports whether an update affects any list's card order.
func cardOrderChanged(prev, next domain.Card) bool {
	return prev.ListID != next.ListID || prev.Position != next.Position || (prev.ArchivedAt == nil) != (next.ArchivedAt == nil)
}

// equalStringSlices reports whether both slices hold the same values in order.
func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// equalNullableTimes reports whether both optional timestamps match.
func equalNullableTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// chooseActorID returns the first non-empty actor id.
func chooseActorID(candidates ...string) string {
	for _, candidate := range candidates {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return defaultActorID
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch op := domain.ChangeOperation(raw); op {
	case domain.ChangeOperationCreate,
		domain.ChangeOperationUpdate,
		domain.ChangeOperationMove,
		domain.ChangeOperationArchive,
		domain.ChangeOperationRestore,
		domain.ChangeOperationDelete,
		domain.ChangeOperationRenormalize:
		return op
	default:
		return domain.ChangeOperationUpdate
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// formatPosition renders a float position for event metadata.
func formatPosition(position float64) string {
	return strconv.FormatFloat(position, 'g', -1, 64)
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanBoard handles scan board.
func scanBoard(s scanner) (domain.Board, error) {
	var (
		b          domain.Board
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&b.ID, &b.Slug, &b.Name, &b.Description, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Board{}, app.ErrNotFound
		}
		return domain.Board{}, err
	}
	b.CreatedAt = parseTS(createdRaw)
	b.UpdatedAt = parseTS(updatedRaw)
	b.ArchivedAt = parseNullTS(archived)
	return b, nil
}

// scanList handles scan list.
func scanList(s scanner) (domain.List, error) {
	var (
		l          domain.List
		createdRaw string
		updatedRaw string
		archived   sql.NullString
	)
	if err := s.Scan(&l.ID, &l.BoardID, &l.Name, &l.WIPLimit, &l.Position, &l.CreatedSeq, &createdRaw, &updatedRaw, &archived); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.List{}, app.ErrNotFound
		}
		return domain.List{}, err
	}
	l.CreatedAt = parseTS(createdRaw)
	l.UpdatedAt = parseTS(updatedRaw)
	l.ArchivedAt = parseNullTS(archived)
	return l, nil
}

// scanCard handles scan card.
func scanCard(s scanner) (domain.Card, error) {
	var (
		c           domain.Card
		priorityRaw string
		dueRaw      sql.NullString
		labelsRaw   string
		createdRaw  string
		updatedRaw  string
		archived    sql.NullString
	)
	if err := s.Scan(
		&c.ID,
		&c.BoardID,
		&c.ListID,
		&c.Position,
		&c.CreatedSeq,
		&c.Title,
		&c.Description,
		&priorityRaw,
		&dueRaw,
		&labelsRaw,
		&createdRaw,
		&updatedRaw,
		&archived,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, app.ErrNotFound
		}
		return domain.Card{}, err
	}
	c.Priority = domain.Priority(priorityRaw)
	c.DueAt = parseNullTS(dueRaw)
	if strings.TrimSpace(labelsRaw) == "" {
		labelsRaw = "[]"
	}
	if err := json.Unmarshal([]byte(labelsRaw), &c.Labels); err != nil {
		return domain.Card{}, fmt.Errorf("decode cards.labels_json: %w", err)
	}
	if c.Labels == nil {
		c.Labels = []string{}
	}
	c.CreatedAt = parseTS(createdRaw)
	c.UpdatedAt = parseTS(updatedRaw)
	c.ArchivedAt = parseNullTS(archived)
	return c, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// translateStale maps a missed compare-and-swap to a retryable conflict.
func translateStale(res sql.Result, container, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %q order version is stale: %w", container, id, app.ErrConflict)
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
