// A fallback-style spell: no Cast entry, the input arrives as INPUT_TEXT and
// whatever is printed becomes the output.

import (
	"fmt"
	"strings"
)

var Meta = map[string]string{
	"id":          "shout",
	"name":        "Shout",
	"description": "Uppercases the text and adds enthusiasm.",
	"category":    "fun",
}

func main() {
	fmt.Print(strings.ToUpper(INPUT_TEXT) + "!!!")
}
