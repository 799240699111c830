package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/buildsite/safesight/internal/domain/analysis"
)

// Input validation and sanitization utilities

// ValidateWorkType checks the work type tag against the known set.
func ValidateWorkType(wt string) error {
	if wt == "" {
		return nil // optional; defaults to general
	}
	for _, known := range analysis.KnownWorkTypes {
		if analysis.WorkType(strings.ToLower(wt)) == known {
			return nil
		}
	}
	return fmt.Errorf("invalid work_type: %s", wt)
}

// ValidateImage rejects empty or oversized payloads before any dispatch
// logic runs.
func ValidateImage(image []byte, maxBytes int) error {
	if len(image) == 0 {
		return fmt.Errorf("image cannot be empty")
	}
	if maxBytes > 0 && len(image) > maxBytes {
		return fmt.Errorf("image exceeds maximum size of %d bytes", maxBytes)
	}
	return nil
}

// ValidateImageContentType accepts the formats the strategies understand.
func ValidateImageContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i > 0 {
		ct = ct[:i]
	}
	switch strings.TrimSpace(ct) {
	case "image/jpeg", "image/png", "image/webp", "application/octet-stream", "application/json", "multipart/form-data":
		return nil
	}
	return fmt.Errorf("unsupported content type: %s", contentType)
}

// ValidateThreshold checks a detection threshold is inside [0,1].
func ValidateThreshold(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %g", name, v)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateSiteID validates site ID format
func ValidateSiteID(site string) error {
	if site == "" {
		return fmt.Errorf("site ID cannot be empty")
	}

	// Allow alphanumeric, dash, underscore (max 64 chars)
	pattern := `^[a-zA-Z0-9_-]{1,64}$`
	matched, _ := regexp.MatchString(pattern, site)
	if !matched {
		return fmt.Errorf("invalid site ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}

	return nil
}

// ValidateAnalysisID validates analysis ID format (UUID)
func ValidateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis ID cannot be empty")
	}

	pattern := `^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`
	matched, _ := regexp.MatchString(pattern, id)
	if !matched {
		return fmt.Errorf("invalid analysis ID format")
	}

	return nil
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}

// MaxBodyBytes caps request bodies before handlers read them.
func MaxBodyBytes(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
