package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidateImageType checks the declared MIME type of an upload.
func ValidateImageType(mime string) error {
	if mime == "" {
		return fmt.Errorf("missing content type")
	}
	if !strings.HasPrefix(strings.ToLower(mime), "image/") {
		return fmt.Errorf("invalid content type: %s (expected image/*)", mime)
	}
	return nil
}

var recordIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// ValidateRecordID validates analysis record ID format (UUID)
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record ID cannot be empty")
	}
	if !recordIDPattern.MatchString(strings.ToLower(id)) {
		return fmt.Errorf("invalid record ID format")
	}
	return nil
}

// ValidateInstallID validates installation ID format
func ValidateInstallID(id string) error {
	if id == "" {
		return fmt.Errorf("installation ID cannot be empty")
	}
	pattern := `^[a-zA-Z0-9:._-]{1,128}$`
	matched, _ := regexp.MatchString(pattern, id)
	if !matched {
		return fmt.Errorf("invalid installation ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
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
