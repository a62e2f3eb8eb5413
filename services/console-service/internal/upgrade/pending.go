package upgrade

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"
)

// PendingUpgrade parks a confirmed upgrade across a redirect to the plan
// page. The token rides back on the return URL and is consumed exactly once.
type PendingUpgrade struct {
	Token     string
	AccountID string
	PlaceID   string
	Feature   Feature
	Plan      string
	CreatedAt time.Time
}

// PendingStore persists pending upgrades. Consume removes and returns the
// record in one step; a second consume of the same token reports not-found,
// which callers treat as "already processed".
type PendingStore interface {
	Create(ctx context.Context, p PendingUpgrade) error
	Consume(ctx context.Context, token string) (PendingUpgrade, bool, error)
}

func NewToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
