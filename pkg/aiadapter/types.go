// Package aiadapter talks to the external multimodal model that analyzes
// product label images: prompt construction, the HTTP call, strict JSON
// parsing, SQUOR scoring conversion, and token/cost accounting
// (spec.md §4.D).
package aiadapter

// PromptMode selects the level of detail requested from the model.
// Standard is canonical; minimal trades completeness for token cost.
type PromptMode string

const (
	ModeMinimal  PromptMode = "minimal"
	ModeStandard PromptMode = "standard"
	ModeDetailed PromptMode = "detailed"
)

// ProductContext is the textual context submitted alongside image URLs.
type ProductContext struct {
	Name     string
	Brand    string
	Price    string
	Category string
}

// AnalyzeRequest is the input to a single Analyze call.
type AnalyzeRequest struct {
	ImageURLs  []string
	ProductURL string
	Context    ProductContext
	Mode       PromptMode
}

// Product is the "product" sub-object of the model's JSON schema.
type Product struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
}

// rawSquor is the "squor" sub-object: five 0-5 component scores plus reasons.
type rawSquor struct {
	S       float64           `json:"s"`
	Q       float64           `json:"q"`
	U       float64           `json:"u"`
	O       float64           `json:"o"`
	R       float64           `json:"r"`
	Reasons map[string]string `json:"reasons"`
}

// Verdict is the "verdict" sub-object.
type Verdict struct {
	Overall0to5    float64 `json:"overall_0_5"`
	Recommendation string  `json:"recommendation"`
}

// BestImage is the "best_image" sub-object. Index is 1-based per the
// schema; a missing or out-of-range index falls back to image 0.
type BestImage struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// rawResult is the exact JSON shape the model is contracted to return
// (spec.md §4.D). Nutrition is decoded into a generic map so that unknown
// extra keys are preserved rather than discarded.
type rawResult struct {
	Product     Product            `json:"product"`
	Ingredients []string           `json:"ingredients"`
	Nutrition   map[string]float64 `json:"nutrition"`
	Claims      []string           `json:"claims"`
	Warnings    []string           `json:"warnings"`
	Squor       rawSquor           `json:"squor"`
	Verdict     Verdict            `json:"verdict"`
	BestImage   BestImage          `json:"best_image"`
	Certifications []string        `json:"certifications"`
	Confidence  float64            `json:"confidence"`
}

// Usage records token accounting for a single Analyze call (spec.md §4.D).
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	ImageTokens  int64
	CostUSD      float64
}

// SquorBreakdown is the converted 0-100 component scoring, keyed the same
// way pkg/models.SquorComponentKey names its components.
type SquorBreakdown struct {
	Safety         float64
	Quality        float64
	Usability      float64
	Origin         float64
	Responsibility float64
	Reasons        map[string]string // keyed by full component name
}

// AnalysisResult is the adapter's typed, fully parsed output.
type AnalysisResult struct {
	Product           Product
	Ingredients       []string
	Nutrition         map[string]float64
	Claims            []string
	Warnings          []string
	Certifications    []string
	Squor             SquorBreakdown
	OverallScore      float64 // 0-100, weighted
	Grade             string
	Verdict           Verdict
	BestImageIndex    int // 0-based, already defaulted/clamped
	BestImageURL      string
	BestImageReason   string
	Confidence        float64
	Usage             Usage
	DuplicateAnalysis bool
}
