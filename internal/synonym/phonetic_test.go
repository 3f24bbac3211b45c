package synonym_test

import (
	"slices"
	"testing"

	"github.com/hecklerbot/heckler/internal/synonym"
)

func TestNoop_KnowsNothing(t *testing.T) {
	t.Parallel()
	if got := (synonym.Noop{}).Synonyms("anything"); len(got) != 0 {
		t.Errorf("expected no synonyms, got %v", got)
	}
}

func TestPhonetic_Homophones(t *testing.T) {
	t.Parallel()
	oracle := synonym.NewPhonetic([]string{"their", "there", "hilarious", "banana"})

	got := oracle.Synonyms("their")
	if !slices.Contains(got, "there") {
		t.Errorf("expected %q among synonyms of %q, got %v", "there", "their", got)
	}
	if slices.Contains(got, "their") {
		t.Errorf("the word itself must not be returned, got %v", got)
	}
	if slices.Contains(got, "banana") {
		t.Errorf("unrelated vocabulary must not match, got %v", got)
	}
}

func TestPhonetic_EmptyAndUnknown(t *testing.T) {
	t.Parallel()
	oracle := synonym.NewPhonetic([]string{"hello"})

	if got := oracle.Synonyms(""); len(got) != 0 {
		t.Errorf("empty word should yield nothing, got %v", got)
	}
	if got := oracle.Synonyms("xylophone"); len(got) != 0 {
		t.Errorf("word with no phonetic neighbours should yield nothing, got %v", got)
	}
}

func TestPhonetic_SetVocabularyReplaces(t *testing.T) {
	t.Parallel()
	oracle := synonym.NewPhonetic([]string{"their", "there"})
	oracle.SetVocabulary([]string{"banana"})

	if got := oracle.Synonyms("their"); len(got) != 0 {
		t.Errorf("old vocabulary should be gone, got %v", got)
	}
}
