package common

import (
	"fmt"
	"sort"
	"strings"
)

// OperationDetail represents a single detail of an operation result
type OperationDetail struct {
	Message string
	Count   int
	IsRisky bool
}

// FormatOperationResult formats an operation result with consistent styling
func FormatOperationResult(title string, details []OperationDetail) string {
	if len(details) == 0 {
		return title + "\nNo operations performed"
	}

	var result strings.Builder
	result.WriteString(title)

	categories := CategorizeDetails(details)
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, category := range names {
		result.WriteString(fmt.Sprintf("\n%s:", category))
		for _, detail := range categories[category] {
			prefix := "\n   ✓ "
			if detail.IsRisky {
				prefix = "\n   ⚠️ "
			}
			result.WriteString(prefix + detail.Message)
		}
	}
	return result.String()
}

// CategorizeDetails groups details by what they touched.
func CategorizeDetails(details []OperationDetail) map[string][]OperationDetail {
	categories := map[string][]OperationDetail{}
	for _, detail := range details {
		msg := strings.ToLower(detail.Message)
		var category string
		switch {
		case strings.Contains(msg, "debug") || strings.Contains(msg, "pdb"):
			category = "DEBUG"
		case strings.Contains(msg, "section"):
			category = "SECTIONS"
		case strings.Contains(msg, "verif") || strings.Contains(msg, "cross-check"):
			category = "VERIFY"
		default:
			category = "OTHER"
		}
		categories[category] = append(categories[category], detail)
	}
	return categories
}
