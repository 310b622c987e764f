package targets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openbridge/objectsync/internal/hashing"
	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
)

// APITargetHandler writes objects to an HTTP API target.
type APITargetHandler struct {
	client httpclient.Client
}

// NewAPITargetHandler creates a new API target handler.
func NewAPITargetHandler(client httpclient.Client) *APITargetHandler {
	return &APITargetHandler{client: client}
}

// CreateObject POSTs the object to the target endpoint and extracts the
// created object's id from the response.
func (h *APITargetHandler) CreateObject(
	ctx context.Context, sync *model.Synchronization, data map[string]any,
) (*Result, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("target endpoint cannot be empty")
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize target payload: %w", err)
	}

	respBody, err := h.client.Do(ctx, httpclient.Request{
		Method:  method,
		URL:     cfg.Endpoint,
		Headers: cfg.Headers,
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("target create failed: %w", err)
	}

	result := &Result{Action: ActionCreate, Body: decodeResponse(respBody)}
	if id := gjson.GetBytes(respBody, cfg.IDPath); id.Exists() {
		result.TargetID = id.String()
	}
	return result, nil
}

// UpdateObject PUTs the object to the endpoint of the contract's target id.
func (h *APITargetHandler) UpdateObject(
	ctx context.Context, sync *model.Synchronization, contract *model.Contract, data map[string]any,
) (*Result, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("target endpoint cannot be empty")
	}
	if contract.TargetID == "" {
		return nil, fmt.Errorf("cannot update without a target id")
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize target payload: %w", err)
	}

	respBody, err := h.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPut,
		URL:     objectURL(cfg.Endpoint, contract.TargetID),
		Headers: cfg.Headers,
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("target update failed: %w", err)
	}

	return &Result{
		TargetID: contract.TargetID,
		Action:   ActionUpdate,
		Body:     decodeResponse(respBody),
	}, nil
}

// DeleteObject removes the object identified by the contract.
func (h *APITargetHandler) DeleteObject(
	ctx context.Context, sync *model.Synchronization, contract *model.Contract,
) (*Result, error) {
	cfg, err := DecodeConfig(sync)
	if err != nil {
		return nil, err
	}
	if contract.TargetID == "" {
		// Nothing was ever written for this contract.
		return &Result{Action: ActionDelete}, nil
	}

	_, err = h.client.Do(ctx, httpclient.Request{
		Method:  http.MethodDelete,
		URL:     objectURL(cfg.Endpoint, contract.TargetID),
		Headers: cfg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("target delete failed: %w", err)
	}

	return &Result{TargetID: contract.TargetID, Action: ActionDelete}, nil
}

// ObjectHasChanged compares the payload hash against the hash the contract
// recorded for the last dispatched payload.
func (*APITargetHandler) ObjectHasChanged(contract *model.Contract, data map[string]any) (bool, error) {
	hash, err := hashing.Object(data)
	if err != nil {
		return false, err
	}
	return hash != contract.TargetHash, nil
}

// DeleteInvalidObjects reports zero: a remote API target cannot be
// enumerated generically, so orphan reconciliation is driven through the
// contract store for this adapter.
func (*APITargetHandler) DeleteInvalidObjects(
	_ context.Context, sync *model.Synchronization, _ []string,
) (int, error) {
	slog.Debug("API target does not support orphan enumeration, skipping",
		"synchronization", sync.ID)
	return 0, nil
}

func objectURL(endpoint, id string) string {
	return strings.TrimSuffix(endpoint, "/") + "/" + id
}

func decodeResponse(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil
	}
	return decoded
}
