package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
)

// Denylist is an in-process access-token denylist. Entries expire on read
// and are swept whenever a new entry is added.
type Denylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

var _ interfaces.Denylist = (*Denylist)(nil)

// NewDenylist creates an empty Denylist.
func NewDenylist() *Denylist {
	return &Denylist{entries: make(map[string]time.Time), now: time.Now}
}

func (d *Denylist) Add(_ context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.entries {
		if !now.Before(exp) {
			delete(d.entries, k)
		}
	}
	d.entries[token] = now.Add(ttl)
	return nil
}

func (d *Denylist) Contains(_ context.Context, token string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.entries[token]
	if !ok {
		return false, nil
	}
	if !d.now().Before(exp) {
		delete(d.entries, token)
		return false, nil
	}
	return true, nil
}

func (d *Denylist) Close() error { return nil }
