package domain

import "strings"

// Session carries the caller's identity through every operation.
type Session struct {
	ID         string
	Actor      string
	LocationID LocationID
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.Actor) == "" {
		return NewValidationError("actor", "is required")
	}
	if !s.LocationID.Valid() {
		return NewValidationError("location_id", "must be positive")
	}
	return nil
}

// SystemSession is used by background workers.
func SystemSession(actor string) Session {
	return Session{ID: "system", Actor: actor}
}
