package aiadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labelsquor/squorcore/pkg/config"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
	"github.com/labelsquor/squorcore/pkg/quota"
)

func testAIConfig(endpoint string) *config.AIConfig {
	cfg := config.DefaultAIConfig()
	cfg.Endpoint = endpoint
	return cfg
}

func testQuotaManager() *quota.Manager {
	return quota.NewManager("ai", []quota.Limit{
		{Kind: quota.LimitTokensPerMinute, Max: 1_000_000, Window: 0},
		{Kind: quota.LimitTokensPerDay, Max: 1_000_000, Window: 0},
		{Kind: quota.LimitRequestsPerMinute, Max: 1000, Window: 0},
		{Kind: quota.LimitRequestsPerDay, Max: 1000, Window: 0},
	}, quota.DefaultPricing())
}

func sampleReply() string {
	envelope := map[string]any{
		"product": map[string]any{"name": "Oat Crisps", "brand": "Fieldway", "category": "snacks"},
		"ingredients": []string{
			"oats", "sugar", "palm oil",
		},
		"nutrition": map[string]any{
			"energy_kcal": 450, "protein_g": 8, "carbs_g": 60, "sugar_g": 20,
			"fat_g": 15, "saturated_fat_g": 6, "sodium_mg": 300,
		},
		"claims":   []string{"no artificial colors"},
		"warnings": []string{"contains gluten"},
		"squor": map[string]any{
			"s": 3, "q": 2, "u": 4, "o": 2, "r": 3,
			"reasons": map[string]string{"s": "allergens disclosed", "q": "high sugar", "u": "clear label", "o": "origin unclear", "r": "recyclable pack"},
		},
		"verdict":    map[string]any{"overall_0_5": 2.8, "recommendation": "moderate, occasional snack"},
		"best_image": map[string]any{"index": 2, "reason": "clearest nutrition panel"},
		"confidence": 0.82,
	}
	b, _ := json.Marshal(envelope)
	return "```json\n" + string(b) + "\n```"
}

func TestAnalyzeParsesSuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := responseBody{
			Text: sampleReply(),
			Usage: &struct {
				PromptTokens int64 `json:"prompt_tokens"`
				OutputTokens int64 `json:"output_tokens"`
				ImageTokens  int64 `json:"image_tokens"`
			}{PromptTokens: 500, OutputTokens: 120, ImageTokens: 170},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(testAIConfig(srv.URL), testQuotaManager())
	result, err := client.Analyze(t.Context(), AnalyzeRequest{
		ImageURLs: []string{"https://img/1.jpg", "https://img/2.jpg"},
		Context:   ProductContext{Name: "Oat Crisps", Brand: "Fieldway"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Oat Crisps", result.Product.Name)
	assert.Equal(t, 1, result.BestImageIndex)
	assert.Equal(t, "https://img/2.jpg", result.BestImageURL)
	assert.InDelta(t, 60.0, result.Squor.Safety, 0.001)
	assert.NotEmpty(t, result.Grade)
	assert.Equal(t, int64(500), result.Usage.InputTokens)
}

func TestAnalyzeClassifiesServerErrorAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	client := NewClient(testAIConfig(srv.URL), testQuotaManager())
	_, err := client.Analyze(t.Context(), AnalyzeRequest{ImageURLs: []string{"https://img/1.jpg"}})

	require.Error(t, err)
	assert.True(t, pipelineerr.IsTransient(err))
}

func TestAnalyzeClassifiesClientErrorAsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	client := NewClient(testAIConfig(srv.URL), testQuotaManager())
	_, err := client.Analyze(t.Context(), AnalyzeRequest{ImageURLs: []string{"https://img/1.jpg"}})

	require.Error(t, err)
	assert.True(t, pipelineerr.IsFatal(err))
}

func TestAnalyzeReturnsAIParseErrorOnMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(responseBody{Text: "not json at all"})
	}))
	defer srv.Close()

	client := NewClient(testAIConfig(srv.URL), testQuotaManager())
	_, err := client.Analyze(t.Context(), AnalyzeRequest{ImageURLs: []string{"https://img/1.jpg"}})

	require.Error(t, err)
	assert.True(t, pipelineerr.IsAIParseError(err))
}

func TestAnalyzeRejectsWhenQuotaExhausted(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		json.NewEncoder(w).Encode(responseBody{Text: sampleReply()})
	}))
	defer srv.Close()

	tiny := quota.NewManager("ai", []quota.Limit{
		{Kind: quota.LimitTokensPerMinute, Max: 1, Window: 0},
		{Kind: quota.LimitTokensPerDay, Max: 1, Window: 0},
		{Kind: quota.LimitRequestsPerMinute, Max: 1000, Window: 0},
		{Kind: quota.LimitRequestsPerDay, Max: 1000, Window: 0},
	}, quota.DefaultPricing())

	client := NewClient(testAIConfig(srv.URL), tiny)
	_, err := client.Analyze(t.Context(), AnalyzeRequest{ImageURLs: []string{"https://img/1.jpg"}})

	require.Error(t, err)
	assert.True(t, pipelineerr.IsQuotaExceeded(err))
	assert.False(t, called)
}

func TestAnalyzeTruncatesImagesToMax(t *testing.T) {
	var seen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req requestBody
		json.NewDecoder(r.Body).Decode(&req)
		seen = len(req.ImageURLs)
		json.NewEncoder(w).Encode(responseBody{Text: sampleReply()})
	}))
	defer srv.Close()

	cfg := testAIConfig(srv.URL)
	cfg.MaxImages = 1
	client := NewClient(cfg, testQuotaManager())
	_, err := client.Analyze(t.Context(), AnalyzeRequest{ImageURLs: []string{"https://img/1.jpg", "https://img/2.jpg", "https://img/3.jpg"}})

	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}
