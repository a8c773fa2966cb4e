package aiadapter

import (
	"fmt"
	"strings"
)

// standardPrompt is the canonical prompt: the full SQUOR scoring rubric plus
// the strict output schema the model must return.
const standardPrompt = `You are a food product analysis assistant. Analyze the provided product using the images and the context below. Return a single, strictly valid JSON object only (no comments or markdown).

Scoring definition (0-5 integers):
- S (Safety): 0 very unsafe ... 5 very safe.
  Consider: allergen disclosure, contaminant risk, shelf life clarity, correct storage, warnings, regulatory symbols, absence of misleading "medical" claims.
- Q (Quality): 0 poor ... 5 excellent.
  Consider: ingredient quality (whole vs ultra-processed), oil quality, added sugar/sodium load, additive count, overall macronutrient balance.
- U (Usability): 0 unusable ... 5 excellent.
  Consider: clarity of pack info, preparation simplicity, resealability, serving guidance, label readability.
- O (Origin): 0 unknown/opaque ... 5 transparent/sustainable.
  Consider: country of origin, sourcing transparency, supply-chain claims, certifications, local sourcing, batch/lot traceability.
- R (Responsibility): 0 irresponsible ... 5 exemplary.
  Consider: recyclability symbols, reduced-plastic claims, responsible marketing, certifications, corporate responsibility notes.

Output JSON schema:
{
  "product": {"name": "", "brand": "", "category": ""},
  "ingredients": ["..."],
  "nutrition": {
    "energy_kcal": 0,
    "protein_g": 0,
    "carbs_g": 0,
    "sugar_g": 0,
    "fat_g": 0,
    "saturated_fat_g": 0,
    "sodium_mg": 0
  },
  "claims": ["..."],
  "warnings": ["..."],
  "certifications": ["..."],
  "squor": {
    "s": 0, "q": 0, "u": 0, "o": 0, "r": 0,
    "reasons": {"s": "", "q": "", "u": "", "o": "", "r": ""}
  },
  "verdict": {"overall_0_5": 0, "recommendation": ""},
  "best_image": {"index": 1, "reason": ""},
  "confidence": 0.8
}

Rules:
- Use only the provided images and context. Do not fabricate.
- If a field is not visible/derivable, keep a reasonable default (0 or empty) and explain it in reasons.
- Return strictly valid JSON only.`

// minimalPrompt trades schema completeness for token cost.
const minimalPrompt = `JSON only:
{"product":{"name":"","brand":"","category":""},"ingredients":["top 5"],"nutrition":{"energy_kcal":0,"protein_g":0,"carbs_g":0,"sugar_g":0,"fat_g":0,"sodium_mg":0},"squor":{"s":0,"q":0,"u":0,"o":0,"r":0,"reasons":{"s":"","q":"","u":"","o":"","r":""}},"warnings":["max 3"],"verdict":{"overall_0_5":0,"recommendation":"1 line"},"best_image":{"index":1,"reason":""},"confidence":0.8}`

// detailedPrompt asks for the same schema as standard but with more
// thorough justification per component.
const detailedPrompt = standardPrompt + `

Provide a comprehensive analysis: detailed reasoning for each SQUOR dimension citing specific label evidence, complete nutritional analysis, and verified claims vs. actual ingredient content.`

func promptForMode(mode PromptMode) string {
	switch mode {
	case ModeMinimal:
		return minimalPrompt
	case ModeDetailed:
		return detailedPrompt
	default:
		return standardPrompt
	}
}

// BuildPrompt assembles the full prompt text sent to the model: the mode's
// schema/rubric, the product context, and the list of image URLs to analyze
// (spec.md §4.D).
func BuildPrompt(req AnalyzeRequest) string {
	var b strings.Builder
	b.WriteString(promptForMode(req.Mode))

	b.WriteString("\n\nProduct context:\n")
	fmt.Fprintf(&b, "Name: %s\n", valueOrUnknown(req.Context.Name))
	fmt.Fprintf(&b, "Brand: %s\n", valueOrUnknown(req.Context.Brand))
	fmt.Fprintf(&b, "Price: %s\n", valueOrUnknown(req.Context.Price))
	fmt.Fprintf(&b, "Category: %s\n", valueOrUnknown(req.Context.Category))

	b.WriteString("\nAnalyze these product images:\n")
	for i, url := range req.ImageURLs {
		fmt.Fprintf(&b, "Image %d: %s\n", i+1, url)
	}

	return b.String()
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
