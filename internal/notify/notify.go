package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"screenwise/internal/core"
)

// DefaultCooldown is how long a warning key stays suppressed after a
// notification is sent for it.
const DefaultCooldown = 5 * time.Minute

// Notification is what gets handed to the external sink
type Notification struct {
	Title              string
	Body               string
	DedupKey           string
	RequireInteraction bool
}

// Sink forwards notifications to an external channel (Telegram, test double)
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Deduper filters warnings so an unchanged condition produces one
// notification per cooldown window. Keys are "{child_id}-{type}". A warning
// whose key was notified inside the cooldown is suppressed silently and does
// not extend or reset the cooldown, so a condition that clears and
// re-triggers inside the window produces no new alert. State is held in
// process memory only; a restart clears it.
type Deduper struct {
	sink     Sink
	cooldown time.Duration
	clock    core.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewDeduper creates a warning de-duplicator in front of a sink
func NewDeduper(sink Sink, cooldown time.Duration, clock core.Clock, logger *slog.Logger) *Deduper {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduper{
		sink:     sink,
		cooldown: cooldown,
		clock:    clock,
		logger:   logger,
		lastSent: make(map[string]time.Time),
	}
}

// Publish forwards the warning to the sink unless its key is inside the
// cooldown window. Returns true when a notification was dispatched. A sink
// failure leaves the key unmarked so the next evaluation cycle retries.
func (d *Deduper) Publish(ctx context.Context, w core.Warning) (bool, error) {
	key := w.DedupKey()
	now := d.clock.Now()

	d.mu.Lock()
	if sentAt, ok := d.lastSent[key]; ok && now.Sub(sentAt) < d.cooldown {
		d.mu.Unlock()
		d.logger.Debug("Warning suppressed by cooldown",
			"dedup_key", key,
			"sent_at", sentAt,
		)
		return false, nil
	}
	d.mu.Unlock()

	if err := d.sink.Notify(ctx, notificationFor(w)); err != nil {
		return false, err
	}

	d.mu.Lock()
	d.lastSent[key] = now
	d.prune(now)
	d.mu.Unlock()

	d.logger.Info("Notification dispatched",
		"dedup_key", key,
		"type", string(w.Type),
		"child_id", w.ChildID,
	)

	return true, nil
}

// prune drops expired keys; called with the lock held
func (d *Deduper) prune(now time.Time) {
	for key, sentAt := range d.lastSent {
		if now.Sub(sentAt) >= d.cooldown {
			delete(d.lastSent, key)
		}
	}
}

func notificationFor(w core.Warning) Notification {
	title := "Screen time"
	switch w.Type {
	case core.WarningApproachingLimit:
		title = "Approaching daily limit"
	case core.WarningLimitExceeded:
		title = "Daily limit exceeded"
	case core.WarningBedtimeViolation:
		title = "Bedtime violation"
	}

	return Notification{
		Title:              title,
		Body:               w.Message,
		DedupKey:           w.DedupKey(),
		RequireInteraction: w.Severity == core.SeverityCritical,
	}
}
