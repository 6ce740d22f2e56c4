package utils

import "strings"

// SplitText cuts text into chunks of at most limit runes, preferring to break
// after a newline and then after a space. Nothing is dropped or duplicated.
func SplitText(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := breakPoint(runes[:limit])
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// breakPoint returns the length of the first chunk taken from window.
func breakPoint(window []rune) int {
	s := string(window)
	// Only search the back half so chunks don't get tiny.
	half := len(string(window[:len(window)/2]))
	if i := strings.LastIndex(s[half:], "\n"); i >= 0 {
		return len([]rune(s[:half+i+1]))
	}
	if i := strings.LastIndex(s[half:], " "); i >= 0 {
		return len([]rune(s[:half+i+1]))
	}
	return len(window)
}
