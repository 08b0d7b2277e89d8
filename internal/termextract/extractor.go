package termextract

import (
	"sort"
	"strings"
	"unicode"
)

// ExtractedTerm is one candidate tag with its document statistics. Strength
// is the word count of the term, used as a tag-quality proxy.
type ExtractedTerm struct {
	Term        string
	Occurrences int
	Strength    int
}

// Filter decides whether an aggregated term is kept as a candidate.
type Filter struct {
	// SingleStrengthMinOccur rescues one-word terms that repeat often even
	// when their strength falls outside the configured range.
	SingleStrengthMinOccur int
	MinStrength            int
	MaxStrength            int
	MinLength              int
	MaxLength              int
}

// DefaultFilter mirrors the pipeline's production settings: one- and two-word
// terms between 2 and 128 characters, single words needing 4 occurrences when
// the strength range would otherwise reject them.
func DefaultFilter() Filter {
	return Filter{
		SingleStrengthMinOccur: 4,
		MinStrength:            1,
		MaxStrength:            2,
		MinLength:              2,
		MaxLength:              128,
	}
}

// Keep reports whether a term with the given occurrence count and strength
// passes the filter.
func (f Filter) Keep(term string, occurrences, strength int) bool {
	n := len([]rune(term))
	if n < f.MinLength || n > f.MaxLength {
		return false
	}
	if strength >= f.MinStrength && strength <= f.MaxStrength {
		return true
	}
	return strength == 1 && occurrences >= f.SingleStrengthMinOccur
}

// Extractor aggregates tagged terms into candidate tags.
type Extractor struct {
	tagger *Tagger
	filter Filter
}

// NewExtractor wires a tagger and filter together.
func NewExtractor(tagger *Tagger, filter Filter) *Extractor {
	return &Extractor{tagger: tagger, filter: filter}
}

type extractState int

const (
	stateSearch extractState = iota
	stateNoun
)

// Process tags text and walks the tagged terms with a small state machine
// that counts single nouns and composite noun phrases. Results are filtered
// and returned sorted by term for deterministic output.
func (e *Extractor) Process(text string) []ExtractedTerm {
	tagged := e.tagger.Process(text)

	occurrences := make(map[string]int)
	var phrase []string
	state := stateSearch

	add := func(norm string) {
		phrase = append(phrase, norm)
		occurrences[norm]++
	}
	flush := func() {
		if len(phrase) > 1 {
			occurrences[strings.Join(phrase, " ")]++
		}
		phrase = phrase[:0]
	}

	for _, t := range tagged {
		isNoun := strings.HasPrefix(t.Tag, "N")
		switch {
		case state == stateSearch && isNoun:
			state = stateNoun
			add(t.Norm)
		case state == stateSearch && t.Tag == "JJ" && startsUpper(t.Term):
			state = stateNoun
			add(t.Norm)
		case state == stateNoun && isNoun:
			add(t.Norm)
		case state == stateNoun && !isNoun:
			state = stateSearch
			flush()
		}
	}
	flush()

	terms := make([]ExtractedTerm, 0, len(occurrences))
	for term, count := range occurrences {
		strength := len(strings.Fields(term))
		if e.filter.Keep(term, count, strength) {
			terms = append(terms, ExtractedTerm{Term: term, Occurrences: count, Strength: strength})
		}
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Term < terms[j].Term })
	return terms
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}
