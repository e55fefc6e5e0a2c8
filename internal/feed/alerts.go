package feed

// alerts.go - deduped admin alerting (spec.md §5 "Admin alert dedup:
// single mutex, ingestor and cache"). One alert per cause within a
// minimum interval; repeats inside the window are swallowed.

import (
	"sync"
	"time"

	"dhancore/internal/models"
)

// NotificationSink is the downstream persistence/delivery boundary (e.g.
// a repository-backed notification table).
type NotificationSink interface {
	Notify(n *models.Notification)
}

// Deduper throttles repeated alerts for the same cause.
type Deduper struct {
	mu          sync.Mutex
	lastSentAt  map[string]time.Time
	minInterval time.Duration
	sink        NotificationSink
}

// NewDeduper builds a Deduper with the given minimum re-alert interval.
func NewDeduper(sink NotificationSink, minInterval time.Duration) *Deduper {
	if minInterval <= 0 {
		minInterval = 5 * time.Minute
	}
	return &Deduper{lastSentAt: make(map[string]time.Time), minInterval: minInterval, sink: sink}
}

// Alert emits a notification for cause unless one was already sent within
// the throttle window.
func (d *Deduper) Alert(cause, message string) {
	d.mu.Lock()
	last, seen := d.lastSentAt[cause]
	now := time.Now()
	if seen && now.Sub(last) < d.minInterval {
		d.mu.Unlock()
		return
	}
	d.lastSentAt[cause] = now
	d.mu.Unlock()

	if d.sink != nil {
		d.sink.Notify(&models.Notification{
			Type:      cause,
			Message:   message,
			Severity:  models.SeverityWarn,
			Timestamp: now,
		})
	}
}
