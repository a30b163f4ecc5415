// Package ordering computes sparse fractional sort positions for sibling entities.
package ordering

import (
	"cmp"
	"errors"
	"math"
	"slices"
)

// DefaultMinGap is the smallest neighbor gap tolerated before a container is renormalized.
const DefaultMinGap = 1.0 / (1 << 20)

// ErrMissingTargetIndex reports a move request without a destination index.
var ErrMissingTargetIndex = errors.New("move target index is required")

// PositionedEntity is one orderable item inside a container.
type PositionedEntity struct {
	ID          string  `json:"id"`
	Position    float64 `json:"position"`
	ContainerID string  `json:"container_id"`
	// Seq is the creation order, used as the first tie-break for equal positions.
	Seq int64 `json:"seq"`
}

// MoveRequest describes one move inside the destination container's ordered view.
// A nil FromIndex marks an arrival from another container.
type MoveRequest struct {
	EntityID          string
	FromIndex         *int
	ToIndex           *int
	TargetContainerID string
}

// Placement is the computed outcome of one move.
type Placement struct {
	Position float64
	// Index is the clamped destination index in the resulting view.
	Index int
	Prev  *PositionedEntity
	Next  *PositionedEntity
	// NoOp is set when the entity keeps its current slot.
	NoOp bool
	// NeedsRenormalize is set when the neighbor gap fell below the minimum.
	NeedsRenormalize bool
}

// Sort returns a copy ordered by position, then creation sequence, then id.
func Sort(siblings []PositionedEntity) []PositionedEntity {
	out := slices.Clone(siblings)
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare orders two siblings by position, then creation sequence, then id.
func Compare(a, b PositionedEntity) int {
	if c := cmp.Compare(a.Position, b.Position); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// ComputeInsertPosition returns the new position for the moved entity.
func ComputeInsertPosition(siblings []PositionedEntity, req MoveRequest) (float64, error) {
	placement, err := Place(siblings, req, 0)
	if err != nil {
		return 0, err
	}
	return placement.Position, nil
}

// Place computes the new position plus its neighbors. A minGap of zero disables the
// renormalization check.
func Place(siblings []PositionedEntity, req MoveRequest, minGap float64) (Placement, error) {
	placement, _, _, err := place(siblings, req, minGap)
	return placement, err
}

// place is Place plus the detached view and the moved entity, when it was present.
func place(siblings []PositionedEntity, req MoveRequest, minGap float64) (Placement, []PositionedEntity, *PositionedEntity, error) {
	if req.ToIndex == nil {
		return Placement{}, nil, nil, ErrMissingTargetIndex
	}
	ordered := Sort(siblings)
	to := *req.ToIndex

	if req.FromIndex != nil && *req.FromIndex == to && to >= 0 && to < len(ordered) {
		current := ordered[to]
		if req.EntityID == "" || current.ID == req.EntityID {
			placement := Placement{Position: current.Position, Index: to, NoOp: true}
			placement.Prev, placement.Next = Neighbors(slices.Delete(slices.Clone(ordered), to, to+1), to)
			return placement, ordered, &current, nil
		}
	}

	rest, moved := detachForMove(ordered, req)
	to = clampIndex(to, len(rest))
	prev, next := Neighbors(rest, to)
	position := positionBetween(prev, next)
	placement := Placement{
		Position: position,
		Index:    to,
		Prev:     prev,
		Next:     next,
	}
	if minGap > 0 {
		placement.NeedsRenormalize = GapExhausted(prev, next, position, minGap)
	}
	return placement, rest, moved, nil
}

// detachForMove removes the moved entity from the ordered view. FromIndex is trusted when it
// points at the entity; otherwise the entity is located by id.
func detachForMove(ordered []PositionedEntity, req MoveRequest) ([]PositionedEntity, *PositionedEntity) {
	if req.FromIndex != nil {
		from := *req.FromIndex
		if from >= 0 && from < len(ordered) && (req.EntityID == "" || ordered[from].ID == req.EntityID) {
			moved := ordered[from]
			return slices.Delete(slices.Clone(ordered), from, from+1), &moved
		}
	}
	if req.EntityID == "" {
		return ordered, nil
	}
	rest, removed, ok := Detach(ordered, req.EntityID)
	if !ok {
		return rest, nil
	}
	return rest, &removed
}

// Detach removes one entity by id from an ordered view and returns the remaining siblings.
func Detach(siblings []PositionedEntity, entityID string) ([]PositionedEntity, PositionedEntity, bool) {
	ordered := Sort(siblings)
	for idx, entity := range ordered {
		if entity.ID == entityID {
			return slices.Delete(ordered, idx, idx+1), entity, true
		}
	}
	return ordered, PositionedEntity{}, false
}

// InsertAt returns the position for an insert at toIndex in a view that excludes the moved entity.
func InsertAt(rest []PositionedEntity, toIndex int) float64 {
	ordered := Sort(rest)
	return positionBetween(Neighbors(ordered, clampIndex(toIndex, len(ordered))))
}

// Neighbors returns the siblings around toIndex in an ordered view. Either may be nil.
func Neighbors(ordered []PositionedEntity, toIndex int) (*PositionedEntity, *PositionedEntity) {
	toIndex = clampIndex(toIndex, len(ordered))
	var prev, next *PositionedEntity
	if toIndex > 0 {
		entity := ordered[toIndex-1]
		prev = &entity
	}
	if toIndex < len(ordered) {
		entity := ordered[toIndex]
		next = &entity
	}
	return prev, next
}

// positionBetween applies the sparse position formula.
func positionBetween(prev, next *PositionedEntity) float64 {
	switch {
	case prev == nil && next == nil:
		return 1
	case next == nil:
		return math.Ceil(prev.Position) + 1
	case prev == nil:
		return math.Floor(next.Position) - 1
	default:
		return (prev.Position + next.Position) / 2
	}
}

// ApplyMove returns the reordered view after the move together with the new position.
// It mirrors what a client shows optimistically before the authoritative response.
func ApplyMove(siblings []PositionedEntity, req MoveRequest) ([]PositionedEntity, float64, error) {
	placement, rest, moved, err := place(siblings, req, 0)
	if err != nil {
		return nil, 0, err
	}
	if placement.NoOp {
		return rest, placement.Position, nil
	}
	entity := PositionedEntity{ID: req.EntityID, ContainerID: req.TargetContainerID}
	if moved != nil {
		entity = *moved
	}
	if req.TargetContainerID != "" {
		entity.ContainerID = req.TargetContainerID
	}
	entity.Position = placement.Position
	view := slices.Insert(slices.Clone(rest), placement.Index, entity)
	return view, placement.Position, nil
}

// GapExhausted reports whether pos is too close to, or not strictly between, its neighbors.
func GapExhausted(prev, next *PositionedEntity, pos, minGap float64) bool {
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return true
	}
	if prev != nil && (pos <= prev.Position || pos-prev.Position < minGap) {
		return true
	}
	if next != nil && (pos >= next.Position || next.Position-pos < minGap) {
		return true
	}
	return false
}

// Renormalize reassigns integer positions 1..N in current order.
func Renormalize(siblings []PositionedEntity) []PositionedEntity {
	out := Sort(siblings)
	for idx := range out {
		out[idx].Position = float64(idx + 1)
	}
	return out
}

// clampIndex bounds idx to [0, n].
func clampIndex(idx, n int) int {
	return max(0, min(idx, n))
}
