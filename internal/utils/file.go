package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// FileExtension returns the lower-cased file extension without the dot
func FileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a supported image extension
func IsImageFile(filename string) bool {
	ext := FileExtension(filename)
	imageExts := []string{"tif", "tiff", "png", "jpg", "jpeg", "gif", "bmp", "webp"}

	for _, imgExt := range imageExts {
		if ext == imgExt {
			return true
		}
	}
	return false
}

// IsLabelFile checks for the conventional label-image suffix on the file stem
func IsLabelFile(filename string) bool {
	stem := Stem(filename)
	return strings.HasSuffix(stem, "_labels") || strings.HasSuffix(stem, "_label")
}

// Stem returns the base filename without its extension
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DeriveOutputPath builds the deterministic output path for a processed file.
// With an empty outputRoot the output lands next to the source. The suffix is
// appended to the stem; an empty ext keeps the source extension.
func DeriveOutputPath(sourcePath, outputRoot, suffix, ext string) string {
	dir := filepath.Dir(sourcePath)
	if outputRoot != "" {
		dir = outputRoot
	}

	if ext == "" {
		ext = FileExtension(sourcePath)
		if ext == "" {
			ext = "tif"
		}
	}
	ext = strings.TrimPrefix(ext, ".")

	name := fmt.Sprintf("%s%s.%s", SanitizeFilename(Stem(sourcePath)), suffix, ext)
	return filepath.Join(dir, name)
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	return strings.Trim(result, " .")
}

// FormatFileSize formats a byte count in human-readable form
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
