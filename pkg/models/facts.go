package models

import "time"

// FactFamily names one of the five SCD-2 fact tables keyed to a
// ProductVersion (spec.md §3).
type FactFamily string

const (
	FactFamilyIngredients    FactFamily = "ingredients"
	FactFamilyNutrition      FactFamily = "nutrition"
	FactFamilyAllergens      FactFamily = "allergens"
	FactFamilyClaims         FactFamily = "claims"
	FactFamilyCertifications FactFamily = "certifications"
)

// SCD2 carries the slowly-changing-dimension bookkeeping shared by every
// fact family row: at most one row per (ProductVersionID, family) has
// IsCurrent = true at any time.
type SCD2 struct {
	ID               string     `json:"id"`
	ProductVersionID string     `json:"product_version_id"`
	ValidFrom        time.Time  `json:"valid_from"`
	ValidTo          *time.Time `json:"valid_to,omitempty"`
	IsCurrent        bool       `json:"is_current"`
}

// IngredientTree separates a normalized ingredient list into the first three
// "main" ingredients, additive-pattern matches, and allergen-keyword matches
// (spec.md §4.E).
type IngredientTree struct {
	MainIngredients []string `json:"main_ingredients"`
	Additives       []string `json:"additives"`
	Allergens       []string `json:"allergens"`
}

// IngredientFact is the Ingredients SCD-2 row.
type IngredientFact struct {
	SCD2
	RawText         string         `json:"raw_text"`
	NormalizedList  []string       `json:"normalized_list"`
	Tree            IngredientTree `json:"tree"`
	LastConfirmedAt *time.Time     `json:"last_confirmed_at,omitempty"`
}

// NutritionFact is the Nutrition SCD-2 row. Per100g/PerServing hold the
// fields the AI output defines explicitly; Additional preserves any keys the
// AI returned beyond the documented schema.
type NutritionFact struct {
	SCD2
	Per100g    map[string]float64 `json:"per_100g"`
	PerServing map[string]float64 `json:"per_serving"`
	Additional map[string]float64 `json:"additional,omitempty"`
}

// AllergenFact is the Allergens SCD-2 row, distinguishing bare mentions from
// "may contain" phrasing (spec.md §4.E).
type AllergenFact struct {
	SCD2
	DeclaredList   []string `json:"declared_list"`
	MayContainList []string `json:"may_contain_list"`
}

// ClaimCategory is one of the fixed categories claims are bucketed into via
// keyword dictionary (spec.md §4.E).
type ClaimCategory string

const (
	ClaimCategoryQuality       ClaimCategory = "quality"
	ClaimCategoryHealth        ClaimCategory = "health"
	ClaimCategoryOrigin        ClaimCategory = "origin"
	ClaimCategoryNegative      ClaimCategory = "negative_claim"
	ClaimCategoryEnvironmental ClaimCategory = "environmental"
	ClaimCategoryGeneral       ClaimCategory = "general"
)

// ClaimFact is the Claims SCD-2 row.
type ClaimFact struct {
	SCD2
	RawList    []string                 `json:"raw_list"`
	Categories map[ClaimCategory][]string `json:"categories"`
}

// CertificationFact is one row per certification scheme present in the AI
// output (spec.md §4.E): one logical row per scheme, all sharing the same
// SCD-2 validity window as siblings written in the same stage run.
type CertificationFact struct {
	SCD2
	Scheme string `json:"scheme"`
}

// NewSCD2 constructs the embedded SCD-2 header for a freshly-opened row. Its
// fields (ID, ProductVersionID, ValidFrom, ValidTo, IsCurrent) are promoted
// onto every fact family struct above, so callers read e.g. fact.IsCurrent
// directly regardless of which family they hold.
func NewSCD2(id, productVersionID string, validFrom time.Time) SCD2 {
	return SCD2{ID: id, ProductVersionID: productVersionID, ValidFrom: validFrom, IsCurrent: true}
}
