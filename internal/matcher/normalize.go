package matcher

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// symbolPattern covers printable ASCII punctuation plus Japanese punctuation
// and brackets. Digits, letters and whitespace are kept.
var symbolPattern = regexp.MustCompile(`[!-/:-@\[-\x60{-~。、，！？「」『』（）【】・]`)

// Normalize folds full-width forms to half-width, removes punctuation and
// lower-cases the result so subtitle text and keywords compare directly.
func Normalize(text string) string {
	text = width.Fold.String(text)
	text = symbolPattern.ReplaceAllString(text, "")
	return cases.Lower(language.Und).String(text)
}
