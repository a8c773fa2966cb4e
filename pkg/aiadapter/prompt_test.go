package aiadapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPromptIncludesContextAndImages(t *testing.T) {
	prompt := BuildPrompt(AnalyzeRequest{
		Mode:      ModeStandard,
		ImageURLs: []string{"https://img/1.jpg", "https://img/2.jpg"},
		Context:   ProductContext{Name: "Oat Crisps", Brand: "Fieldway", Category: "snacks"},
	})

	assert.Contains(t, prompt, "Name: Oat Crisps")
	assert.Contains(t, prompt, "Brand: Fieldway")
	assert.Contains(t, prompt, "Price: Unknown")
	assert.Contains(t, prompt, "Image 1: https://img/1.jpg")
	assert.Contains(t, prompt, "Image 2: https://img/2.jpg")
	assert.Contains(t, prompt, "Scoring definition")
}

func TestBuildPromptMinimalModeOmitsRubric(t *testing.T) {
	prompt := BuildPrompt(AnalyzeRequest{Mode: ModeMinimal, ImageURLs: []string{"https://img/1.jpg"}})
	assert.NotContains(t, prompt, "Scoring definition")
	assert.True(t, strings.Contains(prompt, `"squor"`))
}

func TestBuildPromptDetailedModeExtendsStandard(t *testing.T) {
	prompt := BuildPrompt(AnalyzeRequest{Mode: ModeDetailed, ImageURLs: nil})
	assert.Contains(t, prompt, "Scoring definition")
	assert.Contains(t, prompt, "comprehensive analysis")
}
