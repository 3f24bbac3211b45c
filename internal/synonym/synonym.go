// Package synonym supplies alternate words for phrase matching, widening
// trigger phrases to near-misses in the transcript.
package synonym

// Oracle returns candidate synonyms for a single lowercased word. An
// empty slice means the oracle knows nothing about the word.
type Oracle interface {
	Synonyms(word string) []string
}

// Noop is the default oracle. It knows no synonyms, so matching falls
// back to literal substring containment only.
type Noop struct{}

var _ Oracle = Noop{}

// Synonyms implements [Oracle].
func (Noop) Synonyms(string) []string { return nil }
