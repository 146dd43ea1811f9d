package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fiscalis/proposta-bff/model"
)

// ProposalListing is a proposals page plus the provenance of its data.
type ProposalListing struct {
	Proposals []model.Proposal `json:"proposals"`
	Source    model.DataSource `json:"source"`
}

// ListProposals returns the proposals listing. The upstream listing endpoint
// does not take the caller's bearer token. When the backend is unreachable or
// rejects the call and fallback listing is enabled, a fixed demo dataset is
// served instead, tagged SourceFallback so the UI can label it.
func (c *Client) ListProposals(ctx context.Context, rctx *model.RequestContext) (*ProposalListing, error) {
	body, err := c.do(ctx, rctx, "proposals", http.MethodGet, "/propostas", false, nil)
	if err != nil {
		if c.fallbackListing && IsAvailabilityError(err) {
			slog.Warn("upstream: proposals listing unavailable, serving fallback data",
				"error", err,
			)
			if c.metrics != nil {
				c.metrics.RecordFallbackListing()
			}
			return &ProposalListing{
				Proposals: fallbackProposals(),
				Source:    model.SourceFallback,
			}, nil
		}
		return nil, err
	}

	proposals, err := decodeList[model.Proposal](body)
	if err != nil {
		return nil, err
	}
	return &ProposalListing{Proposals: proposals, Source: model.SourceLive}, nil
}

// GetProposal fetches one proposal by ID. The read path is unauthenticated
// like the listing.
func (c *Client) GetProposal(ctx context.Context, rctx *model.RequestContext, id int64) (*model.Proposal, error) {
	body, err := c.do(ctx, rctx, "proposals", http.MethodGet, fmt.Sprintf("/propostas/%d", id), false, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, model.NewNotFoundError(fmt.Sprintf("proposal %d not found", id))
		}
		return nil, err
	}

	var proposal model.Proposal
	if err := json.Unmarshal(body, &proposal); err != nil {
		return nil, fmt.Errorf("upstream: decode proposal: %w", err)
	}
	return &proposal, nil
}

// CreateProposal finalizes a draft into a persisted proposal. This is the
// only write on the proposals resource and always carries the caller's token.
func (c *Client) CreateProposal(ctx context.Context, rctx *model.RequestContext, create model.ProposalCreate) (*model.Proposal, error) {
	body, err := c.do(ctx, rctx, "proposals", http.MethodPost, "/propostas", true, create)
	if err != nil {
		return nil, err
	}

	var proposal model.Proposal
	if err := json.Unmarshal(body, &proposal); err != nil {
		return nil, fmt.Errorf("upstream: decode created proposal: %w", err)
	}
	return &proposal, nil
}
