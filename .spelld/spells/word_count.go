import (
	"fmt"
	"strings"
)

var Meta = map[string]string{
	"id":          "word_count",
	"name":        "Word Count",
	"description": "Counts words, lines, and characters in the clipboard text.",
	"category":    "text",
}

func Cast(input string) (string, error) {
	words := len(strings.Fields(input))
	lines := len(strings.Split(strings.TrimRight(input, "\n"), "\n"))
	if strings.TrimSpace(input) == "" {
		lines = 0
	}
	return fmt.Sprintf("%d words, %d lines, %d chars", words, lines, len(input)), nil
}
