package util

// TruncateContent shortens content to at most maxLength runes, marking the cut with "...".
func TruncateContent(content string, maxLength int) string {
	runes := []rune(content)
	if len(runes) <= maxLength {
		return content
	}
	return string(runes[:maxLength]) + "..."
}
