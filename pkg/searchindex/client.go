// Package searchindex publishes completed product versions to an external
// search index. It satisfies workflow.Indexer.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/labelsquor/squorcore/pkg/config"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// Client publishes a scored product version to the index.
type Client interface {
	Index(ctx context.Context, productID, versionID string) error
}

// HTTPClient posts the (productID, versionID) pair to a configured search
// index endpoint.
type HTTPClient struct {
	httpClient *http.Client
	cfg        *config.SearchIndexConfig
	token      string
}

// NewHTTPClient builds an HTTPClient from cfg.
func NewHTTPClient(cfg *config.SearchIndexConfig) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		token:      os.Getenv(cfg.TokenEnv),
	}
}

type indexRequest struct {
	ProductID string `json:"product_id"`
	VersionID string `json:"version_id"`
}

// Index publishes productID/versionID. A non-2xx response is classified
// Fatal when cfg.Required is set (the operator opted into hard failure on
// indexing problems, spec.md §9), TransientInfra otherwise, matching
// runIndexing's "log and continue unless Fatal" policy in pkg/workflow.
func (c *HTTPClient) Index(ctx context.Context, productID, versionID string) error {
	body, err := json.Marshal(indexRequest{ProductID: productID, VersionID: versionID})
	if err != nil {
		return pipelineerr.NewFatal("marshal search-index request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/products", bytes.NewReader(body))
	if err != nil {
		return pipelineerr.NewFatal("build search-index request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify("search-index request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return c.classify("search-index request", fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}
	return nil
}

func (c *HTTPClient) classify(op string, err error) error {
	if c.cfg.Required {
		return pipelineerr.NewFatal(op, err)
	}
	return pipelineerr.NewTransientInfra(op, err)
}

// NoOp does nothing. Used when search indexing is disabled.
type NoOp struct{}

func (NoOp) Index(_ context.Context, _, _ string) error { return nil }

// New builds the configured Client: NoOp when disabled, HTTPClient otherwise.
func New(cfg *config.SearchIndexConfig) Client {
	if cfg == nil || !cfg.Enabled {
		return NoOp{}
	}
	return NewHTTPClient(cfg)
}
