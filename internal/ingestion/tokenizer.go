package ingestion

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// asciiPunctuation covers symbols such as $ and + that unicode.IsPunct does not.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// minTokenLength is the shortest token kept; shorter ones carry no signal.
const minTokenLength = 3

var stopwords = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "have": {}, "will": {},
	"your": {}, "their": {}, "which": {}, "were": {}, "been": {}, "there": {},
	"would": {}, "about": {}, "should": {}, "could": {}, "these": {}, "those": {},
	"shall": {}, "must": {}, "and": {}, "the": {}, "for": {}, "is": {},
	"in": {}, "it": {}, "to": {}, "of": {}, "as": {}, "at": {}, "by": {},
	"an": {}, "are": {}, "on": {}, "if": {}, "or": {}, "not": {}, "be": {},
	"all": {},
}

// Tokenize lowercases text, strips punctuation, splits on whitespace and
// drops stopwords and tokens shorter than three characters.
func Tokenize(text string) []string {
	if text == "" {
		return []string{}
	}

	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, strings.ToLower(text))

	fields := strings.Fields(stripped)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenLength {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
