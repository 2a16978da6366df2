// Package utils provides filename helpers.
package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFilenameBytes is the usual NAME_MAX of common filesystems.
const MaxFilenameBytes = 255

var (
	forbiddenChars = regexp.MustCompile(`[\\/:*?\"<>|]+`)

	reservedNames = []string{
		"CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9",
	}
)

// SanitizeFilename sanitizes the filename.
func SanitizeFilename(filename string) string {
	filename = forbiddenChars.ReplaceAllString(filename, "_")

	// Remove control characters
	filename = strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, filename)

	filename = strings.TrimSpace(filename)
	filename = strings.Trim(filename, ".")

	for _, name := range reservedNames {
		if strings.EqualFold(filename, name) {
			filename = "_" + filename
			break
		}
	}

	if len(filename) == 0 {
		filename = "_"
	}

	return filename
}

// TruncateFilename shortens stem so that stem+ext fits in max bytes.
//
// The cut never splits a UTF-8 sequence. ext is kept intact.
func TruncateFilename(stem string, ext string, max int) string {
	budget := max - len(ext)
	if budget <= 0 || len(stem) <= budget {
		return stem + ext
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(stem[cut]) {
		cut--
	}
	return strings.TrimRight(stem[:cut], "_-. ") + ext
}
