package middlewares

import (
	"path/filepath"
	"regexp"
	"strings"
)

// PathSanitizer rewrites job names and report paths so they are safe to use
// as filesystem entries.
type PathSanitizer struct {
	dangerousPatterns []*regexp.Regexp
	replacer          *strings.Replacer
}

// NewPathSanitizer creates a sanitizer with the default rules.
func NewPathSanitizer() *PathSanitizer {
	return &PathSanitizer{
		dangerousPatterns: []*regexp.Regexp{
			regexp.MustCompile(`\.\.`),
			regexp.MustCompile(`^~`),
			regexp.MustCompile(`[<>:"|?*]`),
		},
		replacer: strings.NewReplacer(
			"/", "_",
			"\\", "_",
			"..", "_",
			"~", "_",
			"$", "_",
			"`", "_",
			"|", "_",
			"<", "_",
			">", "_",
			":", "_",
			"\"", "_",
			"?", "_",
			"*", "_",
			"\x00", "_",
		),
	}
}

// SanitizeFilename sanitizes a filename for safe file system operations.
func (ps *PathSanitizer) SanitizeFilename(filename string) string {
	safe := ps.replacer.Replace(filename)

	const maxLength = 255
	if len(safe) > maxLength {
		ext := filepath.Ext(safe)
		if len(ext) < maxLength {
			safe = safe[:maxLength-len(ext)] + ext
		} else {
			safe = safe[:maxLength]
		}
	}

	if safe == "" || safe == "." {
		safe = "unnamed"
	}

	return safe
}

// SanitizeJobName sanitizes a job name for use in report filenames.
func (ps *PathSanitizer) SanitizeJobName(jobName string) string {
	return ps.SanitizeFilename(jobName)
}

// ValidateSaveFolder validates that a report folder path is safe to use.
func (ps *PathSanitizer) ValidateSaveFolder(folder string) error {
	for _, pattern := range ps.dangerousPatterns {
		if pattern.MatchString(folder) {
			return ErrDangerousPattern
		}
	}

	cleanPath := filepath.Clean(folder)
	systemDirs := []string{"/etc", "/bin", "/sbin", "/usr/bin", "/usr/sbin", "/sys", "/proc", "/dev"}
	for _, sysDir := range systemDirs {
		if strings.HasPrefix(cleanPath, sysDir) {
			return ErrSystemDirectory
		}
	}

	return nil
}

// Default sanitizer instance
var DefaultSanitizer = NewPathSanitizer()

// SanitizeFilename is a convenience function using the default sanitizer.
func SanitizeFilename(filename string) string {
	return DefaultSanitizer.SanitizeFilename(filename)
}

// SanitizeJobName is a convenience function using the default sanitizer.
func SanitizeJobName(jobName string) string {
	return DefaultSanitizer.SanitizeJobName(jobName)
}
