package race

import "errors"

var (
	ErrRoomClosed  = errors.New("room closed")
	ErrForbidden   = errors.New("only the room admin may do that")
	ErrRaceStarted = errors.New("race already started")
	ErrPassageSet  = errors.New("passage already set")
	ErrRoomBusy    = errors.New("race already underway, new players cannot join")
	ErrNameLength  = errors.New("name length must be between 1 and 16 characters (inclusive)")
	ErrUnknownUser = errors.New("unknown user")
)
