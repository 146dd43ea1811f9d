// Package navigator tracks which page each session is on and carries
// navigation intents between modules. An intent is consumed on first read:
// the UI polls for it, acts on it once, and a repeat poll sees nothing.
package navigator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fiscalis/proposta-bff/internal/observability"
	"github.com/fiscalis/proposta-bff/model"
)

// Subscriber is notified after a session's page change has been committed.
// Subscribers must not block; anything slow belongs in a goroutine on their
// side.
type Subscriber interface {
	OnPageChange(ctx context.Context, sessionID, fromPage, toPage string)
}

// intentEntry is a pending navigation intent with its expiry.
type intentEntry struct {
	intent    model.NavigationIntent
	expiresAt time.Time
}

// Navigator holds per-session navigation state in memory. Page state is
// ephemeral UI state; losing it on restart only costs a redundant page
// registration from the client.
type Navigator struct {
	mu      sync.RWMutex
	pages   map[string]string       // key: session ID
	intents map[string]*intentEntry // key: session ID

	intentTTL   time.Duration
	subscribers []Subscriber
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// New creates a Navigator with the given intent TTL.
func New(intentTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Navigator {
	if intentTTL <= 0 {
		intentTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		pages:     make(map[string]string),
		intents:   make(map[string]*intentEntry),
		intentTTL: intentTTL,
		metrics:   metrics,
		logger:    logger,
	}
}

// Subscribe registers a page-change subscriber. Not safe to call after the
// navigator is serving requests; wire subscribers at startup.
func (n *Navigator) Subscribe(sub Subscriber) {
	n.subscribers = append(n.subscribers, sub)
}

// CurrentPage returns the session's registered page, empty when the session
// never registered one.
func (n *Navigator) CurrentPage(sessionID string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pages[sessionID]
}

// SetCurrentPage records the session's page and notifies subscribers of the
// change. Re-registering the same page is a no-op and does not notify.
func (n *Navigator) SetCurrentPage(ctx context.Context, sessionID, page string) {
	n.mu.Lock()
	from := n.pages[sessionID]
	if from == page {
		n.mu.Unlock()
		return
	}
	n.pages[sessionID] = page
	n.mu.Unlock()

	// Subscribers run after the commit so they observe the new page.
	for _, sub := range n.subscribers {
		sub.OnPageChange(ctx, sessionID, from, page)
	}

	n.logger.Debug("page registered",
		zap.String("session_id", sessionID),
		zap.String("from_page", from),
		zap.String("to_page", page),
	)
}

// DeliverIntent stores a navigation intent for the session, replacing any
// pending one. The intent expires after the configured TTL if never consumed.
func (n *Navigator) DeliverIntent(sessionID string, intent model.NavigationIntent) {
	n.mu.Lock()
	n.intents[sessionID] = &intentEntry{
		intent:    intent,
		expiresAt: time.Now().Add(n.intentTTL),
	}
	n.mu.Unlock()

	if n.metrics != nil {
		n.metrics.RecordDeepLink()
	}
	n.logger.Info("navigation intent delivered",
		zap.String("session_id", sessionID),
		zap.String("target_page", intent.TargetPage),
	)
}

// ConsumeIntent returns the session's pending intent and clears it in the
// same operation. A second call returns nil until a new intent is delivered.
// Expired intents read as absent.
func (n *Navigator) ConsumeIntent(sessionID string) *model.NavigationIntent {
	n.mu.Lock()
	defer n.mu.Unlock()

	entry, ok := n.intents[sessionID]
	if !ok {
		return nil
	}
	delete(n.intents, sessionID)

	if time.Now().After(entry.expiresAt) {
		return nil
	}
	intent := entry.intent
	return &intent
}

// DropSession forgets all navigation state of a session. Called on logout.
func (n *Navigator) DropSession(sessionID string) {
	n.mu.Lock()
	delete(n.pages, sessionID)
	delete(n.intents, sessionID)
	n.mu.Unlock()
}
