package domain

import (
	"slices"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

type Card struct {
	ID          string
	BoardID     string
	ListID      string
	Position    float64
	Title       string
	Description string
	Priority    Priority
	DueAt       *time.Time
	Labels      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedSeq  int64
	ArchivedAt  *time.Time
}

type CardInput struct {
	ID          string
	BoardID     string
	ListID      string
	Position    float64
	Title       string
	Description string
	Priority    Priority
	DueAt       *time.Time
	Labels      []string
}

func NewCard(in CardInput, now time.Time) (Card, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.BoardID = strings.TrimSpace(in.BoardID)
	in.ListID = strings.TrimSpace(in.ListID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.ID == "" {
		return Card{}, ErrInvalidID
	}
	if in.BoardID == "" {
		return Card{}, ErrInvalidBoardID
	}
	if in.ListID == "" {
		return Card{}, ErrInvalidListID
	}
	if in.Title == "" {
		return Card{}, ErrInvalidTitle
	}
	if !ValidPosition(in.Position) {
		return Card{}, ErrInvalidPosition
	}

	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !slices.Contains(validPriorities, in.Priority) {
		return Card{}, ErrInvalidPriority
	}

	return Card{
		ID:          in.ID,
		BoardID:     in.BoardID,
		ListID:      in.ListID,
		Position:    in.Position,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		DueAt:       normalizeDueAt(in.DueAt),
		Labels:      normalizeLabels(in.Labels),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// MoveTo places the card in a list at the given position.
func (c *Card) MoveTo(listID string, position float64, now time.Time) error {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return ErrInvalidListID
	}
	if !ValidPosition(position) {
		return ErrInvalidPosition
	}
	c.ListID = listID
	c.Position = position
	c.UpdatedAt = now.UTC()
	return nil
}

func (c *Card) UpdateDetails(title, description string, priority Priority, dueAt *time.Time, labels []string, now time.Time) error {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" {
		return ErrInvalidTitle
	}
	if priority == "" {
		priority = c.Priority
	}
	if !slices.Contains(validPriorities, priority) {
		return ErrInvalidPriority
	}
	c.Title = title
	c.Description = description
	c.Priority = priority
	c.DueAt = normalizeDueAt(dueAt)
	c.Labels = normalizeLabels(labels)
	c.UpdatedAt = now.UTC()
	return nil
}

func (c *Card) Archive(now time.Time) {
	ts := now.UTC()
	c.ArchivedAt = &ts
	c.UpdatedAt = ts
}

func (c *Card) Restore(now time.Time) {
	c.ArchivedAt = nil
	c.UpdatedAt = now.UTC()
}

func normalizeDueAt(dueAt *time.Time) *time.Time {
	if dueAt == nil {
		return nil
	}
	ts := dueAt.UTC().Truncate(time.Second)
	return &ts
}

func normalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := map[string]struct{}{}
	for _, raw := range labels {
		label := strings.ToLower(strings.TrimSpace(raw))
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	slices.Sort(out)
	return out
}
