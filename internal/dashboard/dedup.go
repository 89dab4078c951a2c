package dashboard

import (
	"sync"
	"time"

	"github.com/spec-kit/loan-query-service/internal/events"
)

const maxRememberedIDs = 4096

type fingerprint struct {
	queryID    string
	subQueryID string
	body       string
	sender     string
	at         time.Time
}

func fingerprintOf(e events.UpdateEvent) fingerprint {
	return fingerprint{
		queryID:    e.QueryID,
		subQueryID: e.SubQueryID,
		body:       e.Message,
		sender:     e.Sender,
		at:         e.Timestamp,
	}
}

// same reports whether f and o describe one change to one query.
func (f fingerprint) same(o fingerprint, window time.Duration) bool {
	return f.queryID == o.queryID &&
		f.subQueryID == o.subQueryID &&
		f.body == o.body &&
		f.sender == o.sender &&
		absDuration(f.at.Sub(o.at)) <= window
}

// Deduper drops events that were already applied: same event id, or the
// same query, body and sender with timestamps within the window.
type Deduper struct {
	window time.Duration

	mu     sync.Mutex
	ids    map[string]struct{}
	order  []string
	recent []fingerprint
}

// NewDeduper creates a deduper; window defaults to 5s.
func NewDeduper(window time.Duration) *Deduper {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &Deduper{window: window, ids: make(map[string]struct{})}
}

// Admit reports whether e is new, and remembers it if so.
func (d *Deduper) Admit(e events.UpdateEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e.ID != "" {
		if _, ok := d.ids[e.ID]; ok {
			return false
		}
	}
	// events without a body carry no content to compare
	if e.Message != "" {
		fp := fingerprintOf(e)
		for _, f := range d.recent {
			if f.same(fp, d.window) {
				return false
			}
		}
	}

	d.remember(e)
	return true
}

func (d *Deduper) remember(e events.UpdateEvent) {
	if e.ID != "" {
		d.ids[e.ID] = struct{}{}
		d.order = append(d.order, e.ID)
		if len(d.order) > maxRememberedIDs {
			delete(d.ids, d.order[0])
			d.order = d.order[1:]
		}
	}
	if e.Message == "" {
		return
	}

	kept := d.recent[:0]
	for _, f := range d.recent {
		if absDuration(e.Timestamp.Sub(f.at)) <= 2*d.window {
			kept = append(kept, f)
		}
	}
	d.recent = append(kept, fingerprintOf(e))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
