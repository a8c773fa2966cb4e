// Package notify announces workflow completion/failure to downstream
// subscribers. It satisfies workflow.Notifier.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/labelsquor/squorcore/pkg/config"
	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// Client announces a workflow item's terminal state.
type Client interface {
	Notify(ctx context.Context, item *models.WorkflowItem) error
}

// HTTPClient posts a notification payload to a configured webhook endpoint.
type HTTPClient struct {
	httpClient *http.Client
	cfg        *config.NotifyConfig
	token      string
}

// NewHTTPClient builds an HTTPClient from cfg.
func NewHTTPClient(cfg *config.NotifyConfig) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		token:      os.Getenv(cfg.TokenEnv),
	}
}

type notifyRequest struct {
	WorkflowID string `json:"workflow_id"`
	ProductID  string `json:"product_id"`
	State      string `json:"state"`
	LastError  string `json:"last_error,omitempty"`
}

// Notify posts item's terminal state. Failure is classified Fatal when
// cfg.Required is set, TransientInfra otherwise, same policy as
// pkg/searchindex (spec.md §9).
func (c *HTTPClient) Notify(ctx context.Context, item *models.WorkflowItem) error {
	body, err := json.Marshal(notifyRequest{
		WorkflowID: item.ID,
		ProductID:  item.ProductID,
		State:      string(item.State),
		LastError:  item.LastError,
	})
	if err != nil {
		return pipelineerr.NewFatal("marshal notification request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/notifications", bytes.NewReader(body))
	if err != nil {
		return pipelineerr.NewFatal("build notification request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify("notification request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return c.classify("notification request", fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}
	return nil
}

func (c *HTTPClient) classify(op string, err error) error {
	if c.cfg.Required {
		return pipelineerr.NewFatal(op, err)
	}
	return pipelineerr.NewTransientInfra(op, err)
}

// NoOp does nothing. Used when notification is disabled.
type NoOp struct{}

func (NoOp) Notify(_ context.Context, _ *models.WorkflowItem) error { return nil }

// New builds the configured Client: NoOp when disabled, HTTPClient otherwise.
func New(cfg *config.NotifyConfig) Client {
	if cfg == nil || !cfg.Enabled {
		return NoOp{}
	}
	return NewHTTPClient(cfg)
}
