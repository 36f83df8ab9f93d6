package cache

import (
	"context"
	"time"
)

// OfficialQuota is the cached shape of the LINE quota lookup.
type OfficialQuota struct {
	Quota      int64   `json:"quota"`
	Used       int64   `json:"used"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Unlimited  bool    `json:"unlimited"`
}

// QuotaCache stores official-quota lookups per shop for a short TTL so the
// dashboard does not hammer the platform. A miss is (nil, nil).
type QuotaCache interface {
	Get(ctx context.Context, shopID string) (*OfficialQuota, error)
	Store(ctx context.Context, shopID string, q *OfficialQuota, ttl time.Duration) error
}

// Noop is used when no Redis address is configured.
type Noop struct{}

func (Noop) Get(ctx context.Context, shopID string) (*OfficialQuota, error) {
	return nil, nil
}

func (Noop) Store(ctx context.Context, shopID string, q *OfficialQuota, ttl time.Duration) error {
	return nil
}
