package termextract

import (
	"strings"
	"unicode"
)

// correctDefaultNounTag resolves the default noun tag into singular or plural
// based on a trailing "s", setting the normalized form for plurals.
func correctDefaultNounTag(_ int, term *TaggedTerm, _ []TaggedTerm, _ map[string]string) {
	if term.Tag != defaultNoun {
		return
	}
	if strings.HasSuffix(term.Term, "s") {
		term.Tag = "NNS"
		term.Norm = term.Term[:len(term.Term)-1]
	} else {
		term.Tag = "NN"
	}
}

// determineVerbAfterModal retags the first non-adverb term after a modal as a
// verb when the lexicon called it a noun ("can jump": jump NN -> VB).
func determineVerbAfterModal(i int, term *TaggedTerm, terms []TaggedTerm, _ map[string]string) {
	if term.Tag != "MD" {
		return
	}
	for j := i + 1; j < len(terms); j++ {
		if terms[j].Tag == "RB" {
			continue
		}
		if terms[j].Tag == "NN" {
			terms[j].Tag = "VB"
		}
		return
	}
}

// verifyProperNounAtSentenceStart demotes a capitalized term at the start of
// a sentence when its lowercase form is a common noun in the lexicon.
func verifyProperNounAtSentenceStart(i int, term *TaggedTerm, terms []TaggedTerm, lexicon map[string]string) {
	if i != 0 && terms[i-1].Tag != "." {
		return
	}
	switch term.Tag {
	case "NNP", "NNPS", "NN", "NNS":
	default:
		return
	}
	runes := []rune(term.Term)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return
	}
	lower := strings.ToLower(term.Term)
	if tag, ok := lexicon[lower]; ok && (tag == "NN" || tag == "NNS") {
		term.Term = lower
		term.Norm = lower
		term.Tag = tag
	}
}

// normalizePluralForms derives the singular normalized form of a plural noun
// by trying the "s", "es" and "ies" suffix rules against the lexicon.
func normalizePluralForms(_ int, term *TaggedTerm, _ []TaggedTerm, lexicon map[string]string) {
	if term.Tag != "NNS" && term.Tag != "NNPS" {
		return
	}
	if term.Term != term.Norm {
		return
	}
	w := term.Term
	if strings.HasSuffix(w, "s") {
		if singular := w[:len(w)-1]; inLexicon(lexicon, singular) {
			term.Norm = singular
			return
		}
	}
	if strings.HasSuffix(w, "es") {
		if singular := w[:len(w)-2]; inLexicon(lexicon, singular) {
			term.Norm = singular
			return
		}
	}
	if strings.HasSuffix(w, "ies") {
		if singular := w[:len(w)-3] + "y"; inLexicon(lexicon, singular) {
			term.Norm = singular
			return
		}
	}
}

func inLexicon(lexicon map[string]string, term string) bool {
	_, ok := lexicon[term]
	return ok
}
