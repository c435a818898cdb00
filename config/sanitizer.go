package config

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Sanitizer validates raw string input from the configuration file.
type Sanitizer struct {
	pathTraversalPattern *regexp.Regexp
	imagePattern         *regexp.Regexp
	jobNamePattern       *regexp.Regexp
	macPattern           *regexp.Regexp
}

// NewSanitizer creates a new input sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		pathTraversalPattern: regexp.MustCompile(`\.\.[\\/]|\.\.%2[fF]|%2e%2e`),
		// [registry[:port]/]repo/path[:tag][@sha256:digest]
		imagePattern: regexp.MustCompile(`^(?:(?:[a-zA-Z0-9](?:[a-zA-Z0-9-_]*[a-zA-Z0-9])?\.)*` +
			`[a-zA-Z0-9](?:[a-zA-Z0-9-_]*[a-zA-Z0-9])?(?::[0-9]+)?\/)?[a-z0-9]+(?:[._-][a-z0-9]+)*` +
			`(?:\/[a-z0-9]+(?:[._-][a-z0-9]+)*)*(?::[a-zA-Z0-9_][a-zA-Z0-9._-]{0,127})?(?:@sha256:[a-f0-9]{64})?$`),
		jobNamePattern: regexp.MustCompile(`^[a-zA-Z0-9_-]+$`),
		macPattern:     regexp.MustCompile(`^(?:[0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`),
	}
}

// SanitizeString performs basic string sanitization
func (s *Sanitizer) SanitizeString(input string, maxLength int) (string, error) {
	if len(input) > maxLength {
		return "", fmt.Errorf("input exceeds maximum length of %d characters", maxLength)
	}

	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)

	for _, r := range input {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return "", fmt.Errorf("input contains invalid control characters")
		}
	}

	return input, nil
}

// ValidatePath validates file paths to prevent traversal out of the
// configured roots.
func (s *Sanitizer) ValidatePath(path string) error {
	if s.pathTraversalPattern.MatchString(path) {
		return fmt.Errorf("path contains directory traversal attempt")
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("path contains null byte")
	}

	return nil
}

// ValidateDockerImage validates Docker image references before they are
// handed to the Docker daemon.
func (s *Sanitizer) ValidateDockerImage(image string) error {
	if !s.imagePattern.MatchString(image) {
		return fmt.Errorf("invalid Docker image name format")
	}

	if strings.Contains(image, "..") || strings.Contains(image, "//") {
		return fmt.Errorf("Docker image name contains suspicious patterns")
	}

	if len(image) > 255 {
		return fmt.Errorf("Docker image name exceeds maximum length")
	}

	return nil
}

// ValidateJobName validates job names for safety
func (s *Sanitizer) ValidateJobName(name string) error {
	if len(name) == 0 || len(name) > 100 {
		return fmt.Errorf("job name must be between 1 and 100 characters")
	}

	if !s.jobNamePattern.MatchString(name) {
		return fmt.Errorf("job name can only contain letters, numbers, dashes, and underscores")
	}

	return nil
}

// ValidateMAC validates a MAC address in colon or dash notation.
func (s *Sanitizer) ValidateMAC(mac string) error {
	if !s.macPattern.MatchString(mac) {
		return fmt.Errorf("invalid MAC address: %s", mac)
	}
	return nil
}

// DefaultSanitizer is the sanitizer used by the config loader.
var DefaultSanitizer = NewSanitizer()
