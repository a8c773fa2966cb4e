package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labelsquor/squorcore/pkg/aiadapter"
	"github.com/labelsquor/squorcore/pkg/models"
	"github.com/labelsquor/squorcore/pkg/normalize"
	"github.com/labelsquor/squorcore/pkg/pipelineerr"
)

// runDiscovery resolves the source page into a brand/product/version,
// creating a new ProductVersion only when the content hash changed
// (spec.md §4.A, §4.F). It stashes the version id and image URLs into the
// item's StageDetails for the following stages to consume without
// re-reading the source page.
func (e *Engine) runDiscovery(ctx context.Context, item *models.WorkflowItem) error {
	page, err := e.store.GetSourcePage(ctx, item.SourcePageID)
	if err != nil {
		return &pipelineerr.TransientInfra{Op: "get_source_page", Err: err}
	}

	listing := listingFromExtractedData(page)

	brandName, _ := page.ExtractedData["brand"].(string)
	brand, err := e.store.FindOrCreateBrand(ctx, brandName)
	if err != nil {
		return &pipelineerr.TransientInfra{Op: "find_or_create_brand", Err: err}
	}

	name, _ := page.ExtractedData["name"].(string)
	uniqueKey := normalize.UniqueProductKey(listing)
	product, err := e.store.FindOrCreateProduct(ctx, brand.ID, name, uniqueKey)
	if err != nil {
		return &pipelineerr.TransientInfra{Op: "find_or_create_product", Err: err}
	}
	item.ProductID = product.ID

	shouldCreate, reason := normalize.ShouldCreateNewVersion(listing, product.LatestContentHash)
	if !shouldCreate {
		slog.Info("content unchanged, skipping re-analysis", "product_id", product.ID, "reason", reason)
		latest, err := e.store.LatestVersion(ctx, product.ID)
		if err != nil {
			return &pipelineerr.TransientInfra{Op: "latest_version", Err: err}
		}
		item.StageDetails["version_id"] = latest.ID
		item.StageDetails["duplicate"] = true
		item.StageDetails["image_urls"] = listing.Images
		item.StageDetails["product_url"] = listing.URL
		item.StageDetails["product_context"] = aiProductContext(listing)
		return nil
	}

	contentHash := normalize.ContentHash(listing)
	version, err := e.store.CreateVersion(ctx, product.ID, contentHash)
	if err != nil {
		// A harmless (product_id, version_seq) race — two workers
		// discovering the same product concurrently — is already resolved
		// inside CreateVersion by re-reading the winner's row; it returns
		// that version with a nil error. What reaches here as
		// IntegrityConflict is a genuine anomaly, not a retryable infra
		// blip, so it must keep its own type rather than being folded into
		// TransientInfra and endlessly backed off.
		if pipelineerr.IsIntegrityConflict(err) {
			return err
		}
		return &pipelineerr.TransientInfra{Op: "create_version", Err: err}
	}

	item.StageDetails["version_id"] = version.ID
	item.StageDetails["duplicate"] = false
	item.StageDetails["image_urls"] = listing.Images
	item.StageDetails["product_url"] = listing.URL
	item.StageDetails["product_context"] = aiProductContext(listing)
	return nil
}

func listingFromExtractedData(page *models.SourcePage) normalize.RawListing {
	data := page.ExtractedData
	return normalize.RawListing{
		Retailer:       page.Retailer,
		URL:            page.URL,
		Name:           stringField(data, "name"),
		Brand:          stringField(data, "brand"),
		Price:          page.RawPrice,
		PackSize:       stringField(data, "pack_size"),
		Description:    stringField(data, "description"),
		Ingredients:    stringSliceField(data, "ingredients"),
		Nutrition:      floatMapField(data, "nutrition"),
		Claims:         stringSliceField(data, "claims"),
		Images:         stringSliceField(data, "images"),
		Category:       stringField(data, "category"),
		EAN:            stringField(data, "ean"),
		RetailerProdID: stringField(data, "retailer_product_id"),
	}
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func stringSliceField(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		if strs, ok := data[key].([]string); ok {
			return strs
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatMapField(data map[string]any, key string) map[string]float64 {
	raw, ok := data[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out
}

func aiProductContext(listing normalize.RawListing) aiadapter.ProductContext {
	return aiadapter.ProductContext{
		Name:     listing.Name,
		Brand:    listing.Brand,
		Category: listing.Category,
	}
}

// runEnrichment calls the AI adapter with the image URLs discovery stashed,
// admitting the call against the quota manager first. A duplicate item
// never reaches this stage body (see Engine.runStages).
func (e *Engine) runEnrichment(ctx context.Context, item *models.WorkflowItem) (*aiadapter.AnalysisResult, error) {
	imageURLs, _ := item.StageDetails["image_urls"].([]string)
	if len(imageURLs) == 0 {
		return nil, &pipelineerr.BusinessLogicError{Reason: "no images available for AI analysis"}
	}
	if len(imageURLs) > 5 {
		imageURLs = imageURLs[:5]
	}

	productURL, _ := item.StageDetails["product_url"].(string)
	productCtx, _ := item.StageDetails["product_context"].(aiadapter.ProductContext)

	const estimatedTokens = 2000
	if err := e.quota.Check(estimatedTokens); err != nil {
		return nil, err
	}

	result, err := e.analyze.Analyze(ctx, aiadapter.AnalyzeRequest{
		ImageURLs:  imageURLs,
		ProductURL: productURL,
		Context:    productCtx,
		Mode:       aiadapter.ModeStandard,
	})
	if err != nil {
		return nil, err
	}

	e.quota.Record(result.Usage.InputTokens, result.Usage.OutputTokens, result.Usage.ImageTokens)
	slog.Info("ai analysis completed", "workflow_id", item.ID,
		"input_tokens", result.Usage.InputTokens, "output_tokens", result.Usage.OutputTokens,
		"cost_usd", result.Usage.CostUSD)

	return result, nil
}

// runDataMappingAndScoring delegates the full ingredient/nutrition/allergen/
// claims/certifications/score write to the fact mapper, folding data_mapping
// and scoring into a single stage body since both operate on the same
// AnalysisResult (SPEC_FULL.md §4.E/§4.F).
func (e *Engine) runDataMappingAndScoring(ctx context.Context, item *models.WorkflowItem, result *aiadapter.AnalysisResult) error {
	versionID, _ := item.StageDetails["version_id"].(string)
	if versionID == "" {
		return &pipelineerr.Fatal{Reason: "missing version_id in stage details"}
	}

	mapResult, err := e.mapper.MapAnalysis(ctx, versionID, result)
	if err != nil {
		return &pipelineerr.TransientInfra{Op: "map_analysis", Err: err}
	}
	if mapResult.HasErrors() {
		for _, f := range mapResult.Families {
			if f.Err != nil {
				slog.Error("fact family write failed", "workflow_id", item.ID, "family", f.Family, "error", f.Err)
			}
		}
	}
	return nil
}

// runIndexing pushes the version into search. Failure here is logged and
// swallowed by default: indexing is best-effort and must not fail the
// workflow (spec.md §4.F). An operator may opt a collaborator into hard
// failure (config.SearchIndexConfig.Required); its HTTP implementation
// signals that by returning a pipelineerr.Fatal, which this stage
// propagates instead of swallowing (spec.md §9).
func (e *Engine) runIndexing(ctx context.Context, item *models.WorkflowItem) error {
	if e.indexer == nil {
		return nil
	}
	versionID, _ := item.StageDetails["version_id"].(string)
	if err := e.indexer.Index(ctx, item.ProductID, versionID); err != nil {
		if pipelineerr.IsFatal(err) {
			return err
		}
		slog.Warn("indexing failed, continuing", "workflow_id", item.ID, "error", err)
	}
	return nil
}

// runNotification emits a completion notification. Like indexing, failure
// here is logged and swallowed unless the collaborator is configured
// Required, in which case a pipelineerr.Fatal propagates.
func (e *Engine) runNotification(ctx context.Context, item *models.WorkflowItem) error {
	if e.notify == nil {
		return nil
	}
	if err := e.notify.Notify(ctx, item); err != nil {
		if pipelineerr.IsFatal(err) {
			return err
		}
		slog.Warn("notification failed, continuing", "workflow_id", item.ID, "error", err)
	}
	return nil
}

func stageErrorf(stage models.WorkflowStage, err error) error {
	return fmt.Errorf("stage %s: %w", stage, err)
}
