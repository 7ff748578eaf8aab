package apiclient

import (
	"fmt"
	"sync"

	"marquee/internal/services"
)

// Quota is a daily call ceiling. A zero limit means unlimited.
type Quota struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewQuota creates a quota with calls already spent today.
func NewQuota(limit, usedToday int) *Quota {
	if usedToday < 0 {
		usedToday = 0
	}
	return &Quota{limit: limit, used: usedToday}
}

// Reserve claims one call or fails with services.ErrQuotaExceeded.
func (q *Quota) Reserve(provider string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && q.used >= q.limit {
		return services.Wrap(services.ErrQuotaExceeded, provider, "reserve call",
			fmt.Sprintf("%d of %d daily calls used", q.used, q.limit), nil)
	}
	q.used++
	return nil
}

// Release returns a reserved call that was never issued.
func (q *Quota) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.used > 0 {
		q.used--
	}
}

// Remaining reports calls left today; ok is false when unlimited.
func (q *Quota) Remaining() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit <= 0 {
		return 0, false
	}
	if q.used >= q.limit {
		return 0, true
	}
	return q.limit - q.used, true
}
