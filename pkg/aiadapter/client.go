package aiadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/labelsquor/squorcore/pkg/config"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
	"github.com/labelsquor/squorcore/pkg/quota"
)

// Client is a small typed HTTP client over the external multimodal model
// (spec.md §4.D). It resolves its endpoint, model, and API key from
// pkg/config the same way tarsy's pkg/llm.Client resolves its gRPC target
// and model from the environment.
type Client struct {
	httpClient *http.Client
	cfg        *config.AIConfig
	quota      *quota.Manager
	apiKey     string
}

// NewClient creates an AI adapter client. quotaMgr may be nil in tests that
// do not exercise quota admission.
func NewClient(cfg *config.AIConfig, quotaMgr *quota.Manager) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cfg:        cfg,
		quota:      quotaMgr,
		apiKey:     os.Getenv(cfg.APIKeyEnv),
	}
}

// requestBody is the JSON body posted to the model endpoint: a single
// multimodal "generate" call carrying the prompt text and image URLs.
type requestBody struct {
	Model     string   `json:"model"`
	Prompt    string   `json:"prompt"`
	ImageURLs []string `json:"image_urls"`
}

// responseBody is the model endpoint's JSON envelope: the free-text reply
// plus (when present) usage metadata used for token accounting.
type responseBody struct {
	Text  string `json:"text"`
	Usage *struct {
		PromptTokens int64 `json:"prompt_tokens"`
		OutputTokens int64 `json:"output_tokens"`
		ImageTokens  int64 `json:"image_tokens"`
	} `json:"usage"`
}

// Analyze submits up to MaxImages image URLs and product context to the
// model, parses its strict JSON reply, and returns a fully scored
// AnalysisResult. It admits the call through the quota manager first when
// one is configured, and records actual usage afterward (spec.md §4.D).
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	if len(req.ImageURLs) > c.cfg.MaxImages {
		req.ImageURLs = req.ImageURLs[:c.cfg.MaxImages]
	}
	if req.Mode == "" {
		req.Mode = PromptMode(c.cfg.PromptMode)
	}

	prompt := BuildPrompt(req)

	estimatedTokens := estimateTokens(prompt, len(req.ImageURLs), 0)
	if c.quota != nil {
		if err := c.quota.Wait(ctx); err != nil {
			return nil, pipelineerr.NewTransientInfra("quota rate limiter wait", err)
		}
		if err := c.quota.Check(estimatedTokens); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(requestBody{
		Model:     c.cfg.Model,
		Prompt:    prompt,
		ImageURLs: req.ImageURLs,
	})
	if err != nil {
		return nil, pipelineerr.NewFatal("marshal AI request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, pipelineerr.NewFatal("build AI request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pipelineerr.NewTransientInfra("AI model request", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pipelineerr.NewTransientInfra("read AI model response", err)
	}

	if resp.StatusCode >= 500 {
		return nil, pipelineerr.NewTransientInfra("AI model request", fmt.Errorf("status %d: %s", resp.StatusCode, respData))
	}
	if resp.StatusCode >= 400 {
		return nil, pipelineerr.NewFatal(fmt.Sprintf("AI model rejected request (status %d)", resp.StatusCode), errors.New(string(respData)))
	}

	var envelope responseBody
	if err := json.Unmarshal(respData, &envelope); err != nil {
		return nil, &pipelineerr.AIParseError{Stage: "enrichment", RawReply: string(respData), Err: err}
	}

	usage := c.accountUsage(prompt, req.ImageURLs, envelope)

	if envelope.Text == "" && usage.InputTokens == 0 && usage.OutputTokens == 0 {
		return nil, &pipelineerr.QuotaExceeded{Service: "ai", Limit: "response", RetryAfter: "unknown"}
	}

	raw, err := parseResponse("enrichment", envelope.Text)
	if err != nil {
		return nil, err
	}

	result := buildAnalysisResult(raw, req.ImageURLs, usage)

	if c.quota != nil {
		c.quota.Record(usage.InputTokens, usage.OutputTokens, usage.ImageTokens)
	}

	slog.Info("AI analysis complete",
		"mode", req.Mode, "images", len(req.ImageURLs),
		"overall_score", result.OverallScore, "grade", result.Grade,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)

	return result, nil
}

func buildAnalysisResult(raw *rawResult, imageURLs []string, usage Usage) *AnalysisResult {
	breakdown, overall, grade := convertSquor(raw.Squor)
	bestIdx := resolveBestImageIndex(raw.BestImage, len(imageURLs))

	result := &AnalysisResult{
		Product:         raw.Product,
		Ingredients:     raw.Ingredients,
		Nutrition:       raw.Nutrition,
		Claims:          raw.Claims,
		Warnings:        raw.Warnings,
		Certifications:  raw.Certifications,
		Squor:           breakdown,
		OverallScore:    overall,
		Grade:           grade,
		Verdict:         raw.Verdict,
		BestImageIndex:  bestIdx,
		BestImageReason: raw.BestImage.Reason,
		Confidence:      raw.Confidence,
		Usage:           usage,
	}
	if bestIdx < len(imageURLs) {
		result.BestImageURL = imageURLs[bestIdx]
	}
	if result.Nutrition == nil {
		result.Nutrition = map[string]float64{}
	}
	return result
}

// accountUsage extracts token counts from response metadata when present;
// otherwise it estimates from text length (spec.md §4.D).
func (c *Client) accountUsage(prompt string, imageURLs []string, envelope responseBody) Usage {
	if envelope.Usage != nil {
		return Usage{
			InputTokens:  envelope.Usage.PromptTokens,
			OutputTokens: envelope.Usage.OutputTokens,
			ImageTokens:  envelope.Usage.ImageTokens,
			CostUSD:      c.cost(envelope.Usage.PromptTokens, envelope.Usage.OutputTokens, envelope.Usage.ImageTokens),
		}
	}

	input := estimateTokens(prompt, len(imageURLs), 0)
	output := int64(len(envelope.Text) / 4)
	return Usage{
		InputTokens:  input,
		OutputTokens: output,
		ImageTokens:  0,
		CostUSD:      c.cost(input, output, 0),
	}
}

func (c *Client) cost(input, output, image int64) float64 {
	if c.quota == nil {
		return 0
	}
	return c.quota.CallCost(input, output, image)
}

// estimateTokens approximates token count as prompt.len/4 plus ~85 tokens
// per image (spec.md §4.D), matching the original analyzer's heuristic.
func estimateTokens(prompt string, imageCount int, responseLen int) int64 {
	return int64(len(prompt)/4 + imageCount*85 + responseLen/4)
}
