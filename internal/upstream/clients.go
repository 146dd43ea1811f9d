package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fiscalis/proposta-bff/model"
)

// GetClient fetches one client record. Returns NOT_FOUND for unknown IDs.
func (c *Client) GetClient(ctx context.Context, rctx *model.RequestContext, id int64) (*model.Client, error) {
	body, err := c.do(ctx, rctx, "clients", http.MethodGet, fmt.Sprintf("/clientes/%d", id), true, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, model.NewNotFoundError(fmt.Sprintf("client %d not found", id))
		}
		return nil, err
	}

	var client model.Client
	if err := json.Unmarshal(body, &client); err != nil {
		return nil, fmt.Errorf("upstream: decode client: %w", err)
	}
	return &client, nil
}

// ListClients returns the client catalog for the selection step.
func (c *Client) ListClients(ctx context.Context, rctx *model.RequestContext) ([]model.Client, error) {
	body, err := c.do(ctx, rctx, "clients", http.MethodGet, "/clientes", true, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[model.Client](body)
}
