package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
	maxRequestIDLen = 128
)

// ValidateFrameID accepts only canonical UUIDs, the format evidence ids are minted in.
func ValidateFrameID(id string) error {
	if id == "" {
		return fmt.Errorf("frame id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid frame id format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// RequestID cleans a client-supplied X-Request-ID, falling back to "unknown".
func RequestID(raw string) string {
	id := SanitizeString(raw)
	if len(id) > maxRequestIDLen {
		cut := maxRequestIDLen
		for cut > 0 && !utf8.RuneStart(id[cut]) {
			cut--
		}
		id = id[:cut]
	}
	if id == "" {
		return "unknown"
	}
	return id
}

// ParsePage reads a 1-based page number; junk and values below 1 become 1.
func ParsePage(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ParsePageSize reads a page size clamped to [1, MaxPageSize].
func ParsePageSize(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
