package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/hecklerbot/heckler/internal/synonym"
)

// punctuation matches everything that is neither a word character nor
// whitespace. Transcripts are stripped of it before matching so "that's
// hilarious!" still hits the phrase "thats hilarious".
var punctuation = regexp.MustCompile(`[^\w\s]`)

// Normalize lowercases text and strips punctuation, producing the form
// matching operates on.
func Normalize(text string) string {
	return strings.ToLower(punctuation.ReplaceAllString(text, ""))
}

// MatchPhrase returns the clips triggered by text. Duplicates are kept:
// a clip reachable through several phrases appears once per phrase, which
// weights it in the caller's uniform random selection.
//
// A transcript containing the word "random" short-circuits to the whole
// catalog. A clip's ingest transcript acts as an implicit phrase when it
// has more than two words. Stored phrases match by substring containment
// against text and against a synonym-expanded variant of text. Both
// sides of every comparison pass through [Normalize], so punctuation in
// a stored phrase ("that's hilarious") never prevents a match.
func MatchPhrase(ctx context.Context, s Store, text string, oracle synonym.Oracle) ([]Clip, error) {
	text = Normalize(text)

	clips, err := s.ListClips(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: match phrase: %w", err)
	}

	if strings.Contains(text, "random") {
		return clips, nil
	}

	byID := make(map[string]Clip, len(clips))
	var matched []Clip
	for _, c := range clips {
		byID[c.ID] = c
		detected := Normalize(c.SpeechDetected)
		if len(strings.Fields(detected)) > 2 && strings.Contains(text, detected) {
			matched = append(matched, c)
		}
	}

	phrases, err := s.ListPhrases(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: match phrase: %w", err)
	}

	expanded := expand(text, oracle)
	for _, p := range phrases {
		phrase := Normalize(p.Text)
		if phrase == "" {
			continue
		}
		if strings.Contains(text, phrase) || (expanded != "" && strings.Contains(expanded, phrase)) {
			if c, ok := byID[p.ClipID]; ok {
				matched = append(matched, c)
			}
		}
	}
	return matched, nil
}

// expand builds one alternate transcript: each word is replaced by one of
// its synonyms chosen uniformly at random, and words without synonyms are
// dropped. Returns "" when no word has any synonym.
func expand(text string, oracle synonym.Oracle) string {
	if oracle == nil {
		return ""
	}
	var words []string
	for _, w := range strings.Fields(text) {
		syns := oracle.Synonyms(w)
		if len(syns) == 0 {
			continue
		}
		words = append(words, syns[rand.IntN(len(syns))])
	}
	return strings.Join(words, " ")
}
