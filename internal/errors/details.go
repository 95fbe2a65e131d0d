package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

const detailsPrefix = "__json__:"

// ReportableDetails merges every structured detail attached with WithReportableDetails
func ReportableDetails(err error) map[string]any {
	if err == nil {
		return nil
	}

	details := map[string]any{}
	for _, d := range errors.GetAllSafeDetails(err) {
		for _, payload := range d.SafeDetails {
			if !strings.HasPrefix(payload, detailsPrefix) {
				continue
			}
			var m map[string]any
			if json.Unmarshal([]byte(strings.TrimPrefix(payload, detailsPrefix)), &m) != nil {
				continue
			}
			for k, v := range m {
				details[k] = v
			}
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// Kind returns the error_kind detail, if any
func Kind(err error) string {
	if kind, ok := ReportableDetails(err)["error_kind"].(string); ok {
		return kind
	}
	return ""
}

// DisplayMessage returns the first user-facing hint, falling back to a generic message
func DisplayMessage(err error) string {
	// GetAllHints is post-order so the innermost hint comes first
	for _, hint := range errors.GetAllHints(err) {
		if hint = strings.TrimSpace(hint); hint != "" {
			return hint
		}
	}
	return "An unexpected error occurred"
}
