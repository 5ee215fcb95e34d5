import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

var Meta = map[string]string{
	"id":          "text_analyzer",
	"name":        "Text Analyzer",
	"description": "Reports the most frequent words and basic casing stats.",
	"category":    "text",
}

func Cast(input string) (string, error) {
	freq := map[string]int{}
	for _, w := range strings.Fields(strings.ToLower(input)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		if w != "" {
			freq[w]++
		}
	}
	if len(freq) == 0 {
		return "no words found", nil
	}
	type pair struct {
		word  string
		count int
	}
	pairs := make([]pair, 0, len(freq))
	for w, c := range freq {
		pairs = append(pairs, pair{w, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].word < pairs[j].word
	})
	top := pairs
	if len(top) > 5 {
		top = top[:5]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d distinct words\n", len(freq))
	for _, p := range top {
		fmt.Fprintf(&b, "%3d %s\n", p.count, p.word)
	}
	return b.String(), nil
}
