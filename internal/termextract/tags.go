package termextract

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// IsValidTag reports whether an extracted term is usable as a content tag:
// longer than one character, letters and spaces only, no "http" substring,
// at most two words, and not parseable as a number.
func IsValidTag(term string) bool {
	if len([]rune(term)) <= 1 {
		return false
	}
	for _, r := range term {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	if strings.Contains(term, "http") {
		return false
	}
	if len(strings.Split(term, " ")) > 2 {
		return false
	}
	if _, err := strconv.ParseFloat(term, 64); err == nil {
		return false
	}
	return true
}

// SelectTags ranks candidate terms by occurrences + strength*2 descending,
// keeps the top max valid ones lowercased, and returns them sorted
// lexicographically for deterministic uploads.
func SelectTags(terms []ExtractedTerm, max int) []string {
	ranked := make([]ExtractedTerm, len(terms))
	copy(ranked, terms)
	sort.SliceStable(ranked, func(i, j int) bool {
		si := ranked[i].Occurrences + ranked[i].Strength*2
		sj := ranked[j].Occurrences + ranked[j].Strength*2
		if si != sj {
			return si > sj
		}
		return ranked[i].Term < ranked[j].Term
	})

	var tags []string
	for _, t := range ranked {
		if len(tags) >= max {
			break
		}
		if IsValidTag(t.Term) {
			tags = append(tags, strings.ToLower(t.Term))
		}
	}
	sort.Strings(tags)
	return tags
}
