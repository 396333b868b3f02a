// Package moderation screens user submitted text before it is stored.
package moderation

import (
	"strings"
	"unicode"
)

var blocked = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"fuck", "fucking", "fucker", "shit", "shitty", "bitch", "bastard",
		"asshole", "dick", "cunt", "whore", "slut", "piss", "crap",
		"motherfucker", "bullshit", "wanker", "twat", "prick", "douche",
	} {
		blocked[w] = struct{}{}
	}
}

var leet = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"@", "a",
	"$", "s",
)

// ContainsProfanity reports whether text contains a blocked word, matching
// whole words case-insensitively and undoing common digit/symbol swaps.
func ContainsProfanity(text string) bool {
	for _, word := range words(strings.ToLower(text)) {
		if _, ok := blocked[word]; ok {
			return true
		}
		if _, ok := blocked[leet.Replace(word)]; ok {
			return true
		}
	}
	return false
}

// words splits on anything that is not a letter, digit, '@' or '$' so that
// "sh1t!" stays one token.
func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@' && r != '$'
	})
}

// Add extends the blocked list. It is not safe to call concurrently with
// ContainsProfanity.
func Add(words ...string) {
	for _, w := range words {
		blocked[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
}
