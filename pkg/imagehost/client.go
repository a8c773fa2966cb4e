// Package imagehost re-hosts listing images at ingestion time so the
// product record never depends on a retailer's CDN outliving the listing
// (spec.md §6). It is a narrow collaborator in the same shape as
// pkg/aiadapter: a small typed HTTP client resolved from pkg/config, with a
// no-op fallback when unconfigured.
package imagehost

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

// Client re-hosts a single source image URL and returns the stable URL it
// was re-hosted to.
type Client interface {
	UploadFromURL(ctx context.Context, sourceURL string) (string, error)
}

// HTTPClient posts sourceURL to a re-hosting service and returns the
// durable URL the service reports back.
type HTTPClient struct {
	httpClient *http.Client
	cfg        *config.ImageHostConfig
	token      string
}

// NewHTTPClient builds an HTTPClient from cfg. cfg.Enabled is the caller's
// responsibility to check; NewHTTPClient does not refuse to build a client
// for a disabled config, since callers may still want to construct one
// ahead of time.
func NewHTTPClient(cfg *config.ImageHostConfig) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		token:      os.Getenv(cfg.TokenEnv),
	}
}

type uploadRequest struct {
	SourceURL string `json:"source_url"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

// UploadFromURL re-hosts sourceURL. Failure is classified TransientInfra by
// default, or wrapped as a Fatal error when the collaborator is configured
// Required (spec.md §9), letting the caller decide whether to fail the
// workflow hard or log and keep the original URL.
func (c *HTTPClient) UploadFromURL(ctx context.Context, sourceURL string) (string, error) {
	body, err := json.Marshal(uploadRequest{SourceURL: sourceURL})
	if err != nil {
		return "", pipelineerr.NewFatal("marshal image-host request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/images", bytes.NewReader(body))
	if err != nil {
		return "", pipelineerr.NewFatal("build image-host request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.classify("image-host request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.classify("read image-host response", err)
	}
	if resp.StatusCode >= 300 {
		return "", c.classify("image-host request", fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}

	var out uploadResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", c.classify("parse image-host response", err)
	}
	return out.URL, nil
}

func (c *HTTPClient) classify(op string, err error) error {
	if c.cfg.Required {
		return pipelineerr.NewFatal(op, err)
	}
	return pipelineerr.NewTransientInfra(op, err)
}

// NoOp returns the source URL unchanged. Used when image re-hosting is
// disabled, matching tarsy's nil-checked optional-collaborator pattern
// rather than forcing every caller to nil-check the interface itself.
type NoOp struct{}

func (NoOp) UploadFromURL(_ context.Context, sourceURL string) (string, error) {
	return sourceURL, nil
}

// New builds the configured Client: NoOp when disabled, HTTPClient otherwise.
func New(cfg *config.ImageHostConfig) Client {
	if cfg == nil || !cfg.Enabled {
		return NoOp{}
	}
	return NewHTTPClient(cfg)
}
