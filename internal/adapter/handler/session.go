package handler

import (
	"net/http"
	"strings"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

const (
	headerActor          = "X-Actor"
	headerLocation       = "X-Location-ID"
	headerSession        = "X-Session-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

// sessionFrom builds the caller session from request headers. The
// location header is normalized once here ("Loja 3" and "3" are equal).
func sessionFrom(r *http.Request) (domain.Session, error) {
	sess := domain.Session{
		ID:    strings.TrimSpace(r.Header.Get(headerSession)),
		Actor: strings.TrimSpace(r.Header.Get(headerActor)),
	}
	if raw := r.Header.Get(headerLocation); raw != "" {
		loc, err := domain.ParseLocationID(raw)
		if err != nil {
			return sess, err
		}
		sess.LocationID = loc
	}
	return sess, nil
}
