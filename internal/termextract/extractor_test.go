package termextract

import (
	"reflect"
	"testing"
)

func newTestExtractor(t *testing.T, f Filter) *Extractor {
	t.Helper()
	return NewExtractor(newTestTagger(t), f)
}

func findTerm(terms []ExtractedTerm, want string) (ExtractedTerm, bool) {
	for _, term := range terms {
		if term.Term == want {
			return term, true
		}
	}
	return ExtractedTerm{}, false
}

func TestExtractSingleNoun(t *testing.T) {
	e := newTestExtractor(t, DefaultFilter())

	terms := e.Process("The fox can see the fox.")
	term, ok := findTerm(terms, "fox")
	if !ok {
		t.Fatalf("fox not extracted from %v", terms)
	}
	if term.Occurrences != 2 {
		t.Errorf("fox occurrences = %d, want 2", term.Occurrences)
	}
	if term.Strength != 1 {
		t.Errorf("fox strength = %d, want 1", term.Strength)
	}
}

func TestExtractNounPhrase(t *testing.T) {
	e := newTestExtractor(t, DefaultFilter())

	terms := e.Process("We see New York. New York is big.")
	term, ok := findTerm(terms, "New York")
	if !ok {
		t.Fatalf("composite term not extracted from %v", terms)
	}
	if term.Occurrences != 2 {
		t.Errorf("New York occurrences = %d, want 2", term.Occurrences)
	}
	if term.Strength != 2 {
		t.Errorf("New York strength = %d, want 2", term.Strength)
	}
}

func TestExtractDeterministicOrder(t *testing.T) {
	e := newTestExtractor(t, DefaultFilter())

	a := e.Process("tail fox tail fox")
	b := e.Process("tail fox tail fox")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("extraction not deterministic: %v vs %v", a, b)
	}
}

func TestFilterLengthBounds(t *testing.T) {
	f := Filter{SingleStrengthMinOccur: 2, MinStrength: 2, MaxStrength: 4, MinLength: 2, MaxLength: 12}

	if f.Keep("t", 2, 2) {
		t.Error("single char kept")
	}
	if !f.Keep("tt", 2, 2) {
		t.Error("two chars rejected")
	}
	if f.Keep("tttttttttttttt", 2, 2) {
		t.Error("over-long term kept")
	}
}

func TestFilterStrengthBounds(t *testing.T) {
	f := Filter{SingleStrengthMinOccur: 2, MinStrength: 2, MaxStrength: 4, MinLength: 2, MaxLength: 32}

	if !f.Keep("tt tt tt", 2, 3) {
		t.Error("in-range strength rejected")
	}
	if f.Keep("tt tt tt tt tt", 2, 5) {
		t.Error("over-strong term kept")
	}
}

func TestFilterSingleStrengthRescue(t *testing.T) {
	f := Filter{SingleStrengthMinOccur: 2, MinStrength: 2, MaxStrength: 4, MinLength: 2, MaxLength: 32}

	// Strength 1 is below MinStrength but repeated single words are rescued.
	if f.Keep("tt", 1, 1) {
		t.Error("rare single word kept")
	}
	if !f.Keep("tt", 2, 1) {
		t.Error("repeated single word rejected")
	}
}
