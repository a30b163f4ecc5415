package domain

import (
	"math"
	"strings"
	"time"
)

// List is an ordered column of cards inside a board.
type List struct {
	ID        string
	BoardID   string
	Name      string
	WIPLimit  int
	Position  float64
	CreatedAt time.Time
	UpdatedAt time.Time
	// CreatedSeq is the creation order used to break position ties.
	CreatedSeq int64
	ArchivedAt *time.Time
}

// NewList constructs a new list.
func NewList(id, boardID, name string, position float64, wipLimit int, now time.Time) (List, error) {
	id = strings.TrimSpace(id)
	boardID = strings.TrimSpace(boardID)
	name = strings.TrimSpace(name)
	if id == "" {
		return List{}, ErrInvalidID
	}
	if boardID == "" {
		return List{}, ErrInvalidBoardID
	}
	if name == "" {
		return List{}, ErrInvalidName
	}
	if !ValidPosition(position) {
		return List{}, ErrInvalidPosition
	}
	if wipLimit < 0 {
		return List{}, ErrInvalidWIPLimit
	}

	return List{
		ID:        id,
		BoardID:   boardID,
		Name:      name,
		WIPLimit:  wipLimit,
		Position:  position,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename renames the list.
func (l *List) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	l.Name = name
	l.UpdatedAt = now.UTC()
	return nil
}

// SetWIPLimit updates the work-in-progress limit. Zero disables it.
func (l *List) SetWIPLimit(limit int, now time.Time) error {
	if limit < 0 {
		return ErrInvalidWIPLimit
	}
	l.WIPLimit = limit
	l.UpdatedAt = now.UTC()
	return nil
}

// MoveTo sets the board and position of the list.
func (l *List) MoveTo(boardID string, position float64, now time.Time) error {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return ErrInvalidBoardID
	}
	if !ValidPosition(position) {
		return ErrInvalidPosition
	}
	l.BoardID = boardID
	l.Position = position
	l.UpdatedAt = now.UTC()
	return nil
}

// Archive archives the list.
func (l *List) Archive(now time.Time) {
	ts := now.UTC()
	l.ArchivedAt = &ts
	l.UpdatedAt = ts
}

// Restore restores the list.
func (l *List) Restore(now time.Time) {
	l.ArchivedAt = nil
	l.UpdatedAt = now.UTC()
}

// ValidPosition reports whether a sort position is a finite number.
func ValidPosition(position float64) bool {
	return !math.IsNaN(position) && !math.IsInf(position, 0)
}
