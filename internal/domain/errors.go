package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidTitle      = errors.New("invalid title")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrInvalidWIPLimit   = errors.New("invalid wip limit")
	ErrInvalidListID     = errors.New("invalid list id")
	ErrInvalidBoardID    = errors.New("invalid board id")
	ErrInvalidEntityType = errors.New("invalid entity type")
)
