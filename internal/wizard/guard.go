package wizard

import (
	"context"

	"go.uber.org/zap"

	"github.com/fiscalis/proposta-bff/internal/observability"
	"github.com/fiscalis/proposta-bff/model"
)

// ResetGuard purges a session's draft when the session navigates away from
// the wizard's host page with an unfinished flow. It subscribes to page changes
// and never surfaces an error to the navigation that triggered it: a failed
// purge is logged and retried on the next page change at worst.
type ResetGuard struct {
	store    DraftStore
	hostPage string
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewResetGuard creates a reset guard over the given draft store. hostPage is
// the page the wizard lives on; an empty value falls back to the proposals
// page.
func NewResetGuard(store DraftStore, hostPage string, metrics *observability.Metrics, logger *zap.Logger) *ResetGuard {
	if hostPage == "" {
		hostPage = model.PageProposals
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResetGuard{store: store, hostPage: hostPage, metrics: metrics, logger: logger}
}

// OnPageChange implements the navigator's subscriber contract. It runs after
// the page change has been committed, so the purge decision is based on the
// page the session actually landed on.
func (g *ResetGuard) OnPageChange(ctx context.Context, sessionID, fromPage, toPage string) {
	if toPage == g.hostPage {
		return
	}

	hasData, err := g.store.HasDraftData(ctx, sessionID)
	if err != nil {
		g.logger.Error("reset guard: draft check failed",
			zap.String("session_id", sessionID),
			zap.String("to_page", toPage),
			zap.Error(err),
		)
		return
	}
	if !hasData {
		return
	}

	cleared, err := g.store.ClearAll(ctx, sessionID)
	if err != nil {
		g.logger.Error("reset guard: draft purge failed",
			zap.String("session_id", sessionID),
			zap.String("to_page", toPage),
			zap.Error(err),
		)
		return
	}

	if g.metrics != nil {
		g.metrics.RecordDraftPurge(cleared)
		g.metrics.WizardActiveSessions.Dec()
	}
	g.logger.Info("reset guard: purged orphaned draft",
		zap.String("session_id", sessionID),
		zap.String("from_page", fromPage),
		zap.String("to_page", toPage),
		zap.Int("fields_cleared", cleared),
	)
}
