package port

import (
	"context"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type CartStore interface {
	// Load returns the session's cart, nil if none is stored
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)

	// Save stores the cart, replacing the previous one
	Save(ctx context.Context, cart domain.Cart) error

	// Delete drops the session's cart
	Delete(ctx context.Context, sessionID string) error
}
