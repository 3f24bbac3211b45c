package synonym

import (
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

const defaultSimilarityThreshold = 0.80

// Option is a functional option for configuring a [Phonetic] oracle.
type Option func(*Phonetic)

// WithSimilarityThreshold sets the minimum Jaro-Winkler score a
// phonetically colliding vocabulary word needs to count as a synonym.
// Default: 0.80.
func WithSimilarityThreshold(threshold float64) Option {
	return func(p *Phonetic) {
		p.threshold = threshold
	}
}

// Phonetic is an [Oracle] built from a vocabulary, typically the distinct
// words of all stored trigger phrases. A word's synonyms are the
// vocabulary words that share a Double Metaphone code with it and score
// above the similarity threshold, so "there" can stand in for "their" and
// a misheard "hilarious" still reaches the trigger.
//
// All methods are safe for concurrent use.
type Phonetic struct {
	threshold float64

	mu      sync.RWMutex
	byCode  map[string][]string
	inVocab map[string]struct{}
}

var _ Oracle = (*Phonetic)(nil)

// NewPhonetic returns a [Phonetic] oracle over vocabulary.
func NewPhonetic(vocabulary []string, opts ...Option) *Phonetic {
	p := &Phonetic{threshold: defaultSimilarityThreshold}
	for _, o := range opts {
		o(p)
	}
	p.SetVocabulary(vocabulary)
	return p
}

// SetVocabulary replaces the oracle's vocabulary. Callers refresh it when
// the stored phrase set changes.
func (p *Phonetic) SetVocabulary(vocabulary []string) {
	byCode := make(map[string][]string)
	inVocab := make(map[string]struct{}, len(vocabulary))
	for _, w := range vocabulary {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, seen := inVocab[w]; seen {
			continue
		}
		inVocab[w] = struct{}{}
		for _, code := range metaphoneCodes(w) {
			byCode[code] = append(byCode[code], w)
		}
	}

	p.mu.Lock()
	p.byCode = byCode
	p.inVocab = inVocab
	p.mu.Unlock()
}

// Synonyms implements [Oracle]. The input word itself is never returned.
func (p *Phonetic) Synonyms(word string) []string {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, code := range metaphoneCodes(word) {
		for _, candidate := range p.byCode[code] {
			if candidate == word {
				continue
			}
			if _, dup := seen[candidate]; dup {
				continue
			}
			if matchr.JaroWinkler(word, candidate, false) < p.threshold {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	sort.Strings(out)
	return out
}

// metaphoneCodes returns the non-empty Double Metaphone codes for w.
func metaphoneCodes(w string) []string {
	primary, secondary := matchr.DoubleMetaphone(w)
	codes := make([]string, 0, 2)
	if primary != "" {
		codes = append(codes, primary)
	}
	if secondary != "" && secondary != primary {
		codes = append(codes, secondary)
	}
	return codes
}
