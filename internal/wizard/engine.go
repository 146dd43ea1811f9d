package wizard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fiscalis/proposta-bff/internal/config"
	"github.com/fiscalis/proposta-bff/internal/observability"
	"github.com/fiscalis/proposta-bff/model"
)

// Backend is the slice of the accounting API the wizard needs.
type Backend interface {
	GetClient(ctx context.Context, rctx *model.RequestContext, id int64) (*model.Client, error)
	ResolveActivityType(ctx context.Context, rctx *model.RequestContext, id int64) (model.ActivityType, model.Applicability)
	CreateProposal(ctx context.Context, rctx *model.RequestContext, create model.ProposalCreate) (*model.Proposal, error)
}

// Result is the outcome of a wizard operation. Finalized is non-nil only
// when the operation completed the flow and created a proposal.
type Result struct {
	Draft     model.ProposalDraft `json:"draft"`
	Finalized *model.Proposal     `json:"finalized,omitempty"`
}

// Engine drives the proposal-creation flow for each session. All state lives
// in the draft store; the engine itself is stateless and safe for concurrent
// use across sessions.
type Engine struct {
	store   DraftStore
	backend Backend
	policy  config.UnknownActivityPolicy
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewEngine creates a wizard engine.
func NewEngine(
	store DraftStore,
	backend Backend,
	cfg config.WizardConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		backend: backend,
		policy:  cfg.UnknownActivityPolicy,
		metrics: metrics,
		logger:  logger,
	}
}

// Current returns the session's draft as stored, without changing anything.
// A session that never touched the wizard reports StepListing and no data.
func (e *Engine) Current(ctx context.Context, rctx *model.RequestContext) (model.ProposalDraft, error) {
	return LoadDraft(ctx, e.store, rctx.SessionID)
}

// Start begins the flow for a session sitting on the listing.
func (e *Engine) Start(ctx context.Context, rctx *model.RequestContext) (Result, error) {
	step, err := e.store.Step(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}
	if step != model.StepListing {
		e.recordValidationFailure(step)
		return Result{}, model.NewInvalidStepError(
			fmt.Sprintf("cannot start: session is at step %s", step),
		)
	}

	// A session on the listing may still carry data from an earlier flow,
	// for instance when the post-finalization clear only partially landed.
	if _, err := e.store.ClearAll(ctx, rctx.SessionID); err != nil {
		return Result{}, err
	}
	if err := e.store.SetStep(ctx, rctx.SessionID, model.StepSelectClient); err != nil {
		return Result{}, err
	}
	e.recordTransition(model.StepListing, model.StepSelectClient, "start")
	if e.metrics != nil {
		e.metrics.WizardActiveSessions.Inc()
	}

	e.logger.Info("wizard started",
		zap.String("session_id", rctx.SessionID),
	)
	return e.result(ctx, rctx, nil)
}

// ConfirmClient records the client chosen in the SELECT_CLIENT step and
// advances to TAX_CONFIG. Inactive clients are rejected without a transition.
func (e *Engine) ConfirmClient(ctx context.Context, rctx *model.RequestContext, sel model.ClientSelection) (Result, error) {
	step, err := e.store.Step(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}
	if step != model.StepSelectClient {
		e.recordValidationFailure(step)
		return Result{}, model.NewInvalidStepError(
			fmt.Sprintf("cannot confirm client: session is at step %s", step),
		)
	}

	client, err := e.backend.GetClient(ctx, rctx, sel.ClientID)
	if err != nil {
		return Result{}, err
	}
	if !client.Active {
		e.recordValidationFailure(step)
		return Result{}, model.NewClientNotEligibleError(
			fmt.Sprintf("client %d is inactive", sel.ClientID),
		)
	}

	if err := e.store.SetClient(ctx, rctx.SessionID, &sel); err != nil {
		return Result{}, err
	}
	if err := e.store.SetStep(ctx, rctx.SessionID, model.StepTaxConfig); err != nil {
		return Result{}, err
	}
	e.recordTransition(model.StepSelectClient, model.StepTaxConfig, "confirm_client")

	return e.result(ctx, rctx, nil)
}

// ConfirmTaxConfig records the tax setup chosen in the TAX_CONFIG step. The
// resolved activity type decides what happens next: applicable types advance
// to SELECT_SERVICES; non-applicable types finalize immediately with no
// services; an unresolvable type follows the configured policy.
func (e *Engine) ConfirmTaxConfig(ctx context.Context, rctx *model.RequestContext, cfg model.TaxConfiguration) (Result, error) {
	step, err := e.store.Step(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}
	if step != model.StepTaxConfig {
		e.recordValidationFailure(step)
		return Result{}, model.NewInvalidStepError(
			fmt.Sprintf("cannot confirm tax configuration: session is at step %s", step),
		)
	}

	activityType, outcome := e.backend.ResolveActivityType(ctx, rctx, cfg.ActivityTypeID)

	switch outcome {
	case model.ApplicabilityUnknown:
		if e.policy == config.PolicyBlock {
			e.recordValidationFailure(step)
			return Result{}, model.NewActivityTypeUnknownError(
				fmt.Sprintf("activity type %d could not be resolved", cfg.ActivityTypeID),
			)
		}
		e.logger.Warn("activity type unresolved, proceeding to service selection",
			zap.String("session_id", rctx.SessionID),
			zap.Int64("activity_type_id", cfg.ActivityTypeID),
		)
		if err := e.storeTaxConfig(ctx, rctx, cfg, nil); err != nil {
			return Result{}, err
		}
		return e.result(ctx, rctx, nil)

	case model.NotApplicable:
		// No services to pick for this activity type; finalize right away.
		if err := e.store.SetTaxConfig(ctx, rctx.SessionID, &cfg, &activityType); err != nil {
			return Result{}, err
		}
		proposal, err := e.finalize(ctx, rctx, cfg, nil)
		if err != nil {
			// The config is stored, the session stays at TAX_CONFIG, and
			// confirming again retries the finalization.
			return Result{}, err
		}
		e.recordTransition(model.StepTaxConfig, model.StepListing, "finalize_direct")
		return e.result(ctx, rctx, proposal)

	default:
		if err := e.storeTaxConfig(ctx, rctx, cfg, &activityType); err != nil {
			return Result{}, err
		}
		return e.result(ctx, rctx, nil)
	}
}

func (e *Engine) storeTaxConfig(ctx context.Context, rctx *model.RequestContext, cfg model.TaxConfiguration, at *model.ActivityType) error {
	if err := e.store.SetTaxConfig(ctx, rctx.SessionID, &cfg, at); err != nil {
		return err
	}
	if err := e.store.SetStep(ctx, rctx.SessionID, model.StepSelectServices); err != nil {
		return err
	}
	e.recordTransition(model.StepTaxConfig, model.StepSelectServices, "confirm_tax_config")
	return nil
}

// ConfirmServices records the selected services and finalizes the proposal.
func (e *Engine) ConfirmServices(ctx context.Context, rctx *model.RequestContext, services []model.SelectedService) (Result, error) {
	step, err := e.store.Step(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}
	if step != model.StepSelectServices {
		e.recordValidationFailure(step)
		return Result{}, model.NewInvalidStepError(
			fmt.Sprintf("cannot confirm services: session is at step %s", step),
		)
	}

	// An empty selection is legal: a proposal with no extra services.
	for i := range services {
		if services[i].Quantity <= 0 {
			e.recordValidationFailure(step)
			return Result{}, model.NewValidationError([]model.FieldError{
				{Field: fmt.Sprintf("services[%d].quantity", i), Message: "quantity must be positive"},
			})
		}
		services[i].Normalize()
	}

	cfg, _, err := e.store.TaxConfig(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}
	if cfg == nil {
		return Result{}, model.NewInvalidStepError("no tax configuration on record for this session")
	}

	// Store first so a failed finalization can be retried without re-entry.
	if err := e.store.SetServices(ctx, rctx.SessionID, services); err != nil {
		return Result{}, err
	}

	proposal, err := e.finalize(ctx, rctx, *cfg, services)
	if err != nil {
		return Result{}, err
	}
	e.recordTransition(model.StepSelectServices, model.StepListing, "finalize")
	return e.result(ctx, rctx, proposal)
}

// finalize creates the proposal upstream and, on success, clears the draft
// and returns the session to the listing.
func (e *Engine) finalize(ctx context.Context, rctx *model.RequestContext, cfg model.TaxConfiguration, services []model.SelectedService) (*model.Proposal, error) {
	client, err := e.store.Client(ctx, rctx.SessionID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, model.NewInvalidStepError("no client selection on record for this session")
	}
	if services == nil {
		services = []model.SelectedService{}
	}

	proposal, err := e.backend.CreateProposal(ctx, rctx, model.ProposalCreate{
		ClientID:         client.ClientID,
		ActivityTypeID:   cfg.ActivityTypeID,
		TaxRegimeID:      cfg.TaxRegimeID,
		RevenueBracketID: cfg.RevenueBracketID,
		Services:         services,
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordFinalization("error")
		}
		e.logger.Error("proposal finalization failed",
			zap.String("session_id", rctx.SessionID),
			zap.Int64("client_id", client.ClientID),
			zap.Error(err),
		)
		return nil, model.NewFinalizationFailedError(err.Error())
	}

	if _, err := e.store.ClearAll(ctx, rctx.SessionID); err != nil {
		// The proposal exists upstream. Force the step back to the listing so
		// the session can start a new flow; leftover fields are the reset
		// guard's problem.
		e.logger.Warn("draft clear after finalization failed",
			zap.String("session_id", rctx.SessionID),
			zap.Error(err),
		)
		if stepErr := e.store.SetStep(ctx, rctx.SessionID, model.StepListing); stepErr != nil {
			e.logger.Warn("step reset after failed clear also failed",
				zap.String("session_id", rctx.SessionID),
				zap.Error(stepErr),
			)
		}
	}

	if e.metrics != nil {
		e.metrics.WizardActiveSessions.Dec()
		e.metrics.RecordFinalization("success")
	}
	e.logger.Info("proposal finalized",
		zap.String("session_id", rctx.SessionID),
		zap.Int64("proposal_id", proposal.ID),
		zap.Int64("client_id", client.ClientID),
	)
	return proposal, nil
}

// Back moves the session one step backward and discards the data of the step
// being left. The discarded field stays present in the store with its zero
// value; only ClearAll removes keys.
func (e *Engine) Back(ctx context.Context, rctx *model.RequestContext) (Result, error) {
	step, err := e.store.Step(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}

	var target model.WizardStep
	switch step {
	case model.StepSelectServices:
		if err := e.store.SetServices(ctx, rctx.SessionID, nil); err != nil {
			return Result{}, err
		}
		target = model.StepTaxConfig
	case model.StepTaxConfig:
		if err := e.store.SetTaxConfig(ctx, rctx.SessionID, nil, nil); err != nil {
			return Result{}, err
		}
		target = model.StepSelectClient
	case model.StepSelectClient:
		if err := e.store.SetClient(ctx, rctx.SessionID, nil); err != nil {
			return Result{}, err
		}
		target = model.StepListing
	default:
		e.recordValidationFailure(step)
		return Result{}, model.NewInvalidStepError("cannot go back from the listing")
	}

	if err := e.store.SetStep(ctx, rctx.SessionID, target); err != nil {
		return Result{}, err
	}
	e.recordTransition(step, target, "back")

	return e.result(ctx, rctx, nil)
}

// Cancel abandons the flow and purges the whole draft. Cancelling a session
// with no draft is a no-op.
func (e *Engine) Cancel(ctx context.Context, rctx *model.RequestContext) (Result, error) {
	step, err := e.store.Step(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}

	cleared, err := e.store.ClearAll(ctx, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}
	if cleared > 0 {
		e.recordTransition(step, model.StepListing, "cancel")
		if e.metrics != nil {
			e.metrics.WizardActiveSessions.Dec()
		}
		e.logger.Info("wizard cancelled",
			zap.String("session_id", rctx.SessionID),
			zap.Int("fields_cleared", cleared),
		)
	}

	return e.result(ctx, rctx, nil)
}

func (e *Engine) result(ctx context.Context, rctx *model.RequestContext, finalized *model.Proposal) (Result, error) {
	draft, err := LoadDraft(ctx, e.store, rctx.SessionID)
	if err != nil {
		return Result{}, err
	}
	return Result{Draft: draft, Finalized: finalized}, nil
}

func (e *Engine) recordTransition(from, to model.WizardStep, event string) {
	if e.metrics != nil {
		e.metrics.RecordWizardTransition(from.String(), to.String(), event)
	}
}

func (e *Engine) recordValidationFailure(step model.WizardStep) {
	if e.metrics != nil {
		e.metrics.RecordWizardValidationFailure(step.String())
	}
}
