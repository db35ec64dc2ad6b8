package privacy

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"winbridge/internal/constants"
)

// MaskID masks a platform id showing only the last few characters.
// Example: "123456789012345678" -> "**************5678"
func MaskID(id string) string {
	if id == "" {
		return ""
	}
	keep := constants.DefaultIDMaskLength
	if len(id) <= keep {
		return strings.Repeat("*", len(id))
	}
	return strings.Repeat("*", len(id)-keep) + id[len(id)-keep:]
}

// MaskContent reduces free text to a short prefix plus its length so logs never carry whole posts
func MaskContent(content string) string {
	if content == "" {
		return ""
	}
	n := utf8.RuneCountInString(content)
	if n <= constants.DefaultContentLogPreview {
		return "[" + strconv.Itoa(n) + " chars]"
	}
	return Truncate(content, constants.DefaultContentLogPreview) + "...[" + strconv.Itoa(n) + " chars]"
}

// Truncate returns at most limit runes of s without splitting a multi-byte character
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// sensitiveKeys are log field names whose values must be masked
var sensitiveKeys = map[string]func(string) string{
	"user_id":     MaskID,
	"author_id":   MaskID,
	"target_user": MaskID,
	"leader_id":   MaskID,
	"content":     MaskContent,
	"body":        MaskContent,
}

// MaskSensitiveFields returns a copy of fields with known sensitive values masked
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if fn, ok := sensitiveKeys[k]; ok {
			if s, isString := v.(string); isString {
				masked[k] = fn(s)
				continue
			}
		}
		masked[k] = v
	}
	return masked
}
