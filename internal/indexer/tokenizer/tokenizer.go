// Package tokenizer turns document text into index terms. It lower-cases
// input and splits on anything that is not a letter, digit or underscore.
// There is no stemming and no stop-word list: every word is a term.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token is a single normalised term and its word position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lower-cased Tokens in reading order. Repeated
// words produce repeated tokens; deduplication is the index's concern.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), isSeparator)
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
	}
	return tokens
}

// Terms returns the distinct terms of text in first-seen order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

// Normalize maps a lookup term onto the form stored in the index. Only
// case and surrounding whitespace are folded, so "Cache" and " cache "
// both become "cache" while "cache-line" stays a two-word string that no
// single index term can match.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}
