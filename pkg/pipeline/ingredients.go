package pipeline

import (
	"regexp"
	"strings"
)

// Marker phrases that open an ingredients declaration, in priority order, and
// the phrases that end it. All matching is done on the lowercased text.
var (
	sectionMarkers     = []string{"ingredients as served", "ingredients", "ingredient"}
	sectionTerminators = []string{"nutritional", "nutrition", "\n\n", "typical values"}

	tokenSplitRE = regexp.MustCompile(`[,;\n]+`)
)

// ExtractIngredients isolates the ingredients declaration from raw OCR text.
// The scan starts at the first marker phrase found (priority order above) and
// stops at the first terminator present in the remainder. When no marker
// matches, the whole text is returned so downstream matching can still run on
// whatever the OCR produced.
func ExtractIngredients(text string) string {
	lower := strings.ToLower(text)
	for _, marker := range sectionMarkers {
		idx := strings.Index(lower, marker)
		if idx == -1 {
			continue
		}
		snippet := text[idx:]
		snipLower := lower[idx:]
		for _, term := range sectionTerminators {
			if si := strings.Index(snipLower, term); si != -1 {
				return snippet[:si]
			}
		}
		return snippet
	}
	return text
}

// Tokenize splits an ingredients section into normalized tokens: the leading
// marker label is dropped, the text is split on comma/semicolon/newline runs,
// and each piece is trimmed of surrounding whitespace and sentence periods.
// Empty pieces are discarded; source order is preserved.
func Tokenize(section string) []string {
	body := section
	lower := strings.ToLower(section)
	for _, marker := range sectionMarkers {
		if strings.HasPrefix(lower, marker) {
			body = strings.TrimLeft(section[len(marker):], ": \t")
			break
		}
	}
	var tokens []string
	for _, piece := range tokenSplitRE.Split(body, -1) {
		t := strings.TrimSpace(strings.Trim(piece, " \t\r."))
		if t == "" {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}
