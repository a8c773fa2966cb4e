package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nonDigitRe = regexp.MustCompile(`\D`)

// ParseGTIN validates and normalizes a barcode string, returning the
// digit-only GTIN when it has a valid length (8, 12, 13, or 14 digits) and
// passes its checksum, or "" otherwise. Grounded on the original
// implementation's parse_gtin/validate_gtin_checksum pair.
func ParseGTIN(gtin string) string {
	clean := nonDigitRe.ReplaceAllString(gtin, "")
	switch len(clean) {
	case 8, 12, 13, 14:
	default:
		return ""
	}
	if ok, err := ValidateGTINChecksum(clean); err != nil || !ok {
		return ""
	}
	return clean
}

// ValidateGTINChecksum validates a digit-only GTIN using the GS1 check
// digit algorithm (a Luhn variant with alternating weights 3/1 from the
// rightmost non-check digit).
func ValidateGTINChecksum(gtin string) (bool, error) {
	if gtin == "" {
		return false, fmt.Errorf("empty gtin")
	}
	for _, r := range gtin {
		if r < '0' || r > '9' {
			return false, fmt.Errorf("non-digit character in gtin: %q", gtin)
		}
	}

	body := gtin[:len(gtin)-1]
	checkDigit, err := strconv.Atoi(gtin[len(gtin)-1:])
	if err != nil {
		return false, err
	}

	total := 0
	n := len(body)
	for i, r := range body {
		digit := int(r - '0')
		// Position counted from the right of the full code (including the
		// check digit); even distance-from-end positions get weight 3.
		if (n+1-i)%2 == 0 {
			total += digit * 3
		} else {
			total += digit
		}
	}

	computed := (10 - (total % 10)) % 10
	return computed == checkDigit, nil
}

// unitAliases maps raw unit tokens to their canonical form.
var unitAliases = map[string]string{
	"g": "g", "gm": "g", "gram": "g", "grams": "g",
	"kg": "kg", "kilogram": "kg", "kilograms": "kg",
	"ml": "ml", "milliliter": "ml", "milliliters": "ml",
	"l": "l", "liter": "l", "liters": "l",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
	"lb": "lb", "pound": "lb", "pounds": "lb",
	"pcs": "pcs", "piece": "pcs", "pieces": "pcs",
	"sachet": "sachets", "sachets": "sachets",
}

var unitValueRe = regexp.MustCompile(`(?i)^\s*([\d.]+)\s*([a-zA-Z]+)`)

// Unit parses a value like "500ml" into (500, "ml"), normalizing aliased
// unit spellings. Returns (0, "") for empty input or an unparseable number,
// and (0, lowercased input) when the value has no leading number.
func Unit(value string) (float64, string) {
	if value == "" {
		return 0, ""
	}
	m := unitValueRe.FindStringSubmatch(value)
	if m == nil {
		return 0, strings.ToLower(strings.TrimSpace(value))
	}
	qty, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ""
	}
	unit := strings.ToLower(m[2])
	if canonical, ok := unitAliases[unit]; ok {
		unit = canonical
	}
	return qty, unit
}

// specificUnits are the pack-size units the Consolidator prefers over the
// coarser {kg, l} when merging listings (spec.md §4.B).
var specificUnits = map[string]bool{"g": true, "ml": true, "pcs": true, "sachets": true}

// IsSpecificPackUnit reports whether unit is one of the "specific" pack
// size units {g, ml, pcs, sachets} rather than a coarse unit like kg/l.
func IsSpecificPackUnit(unit string) bool {
	return specificUnits[unit]
}
