package termextract

import (
	"reflect"
	"testing"
)

func TestIsValidTag(t *testing.T) {
	tests := []struct {
		term string
		want bool
	}{
		{"New York", true},
		{"fox", true},
		{"42", false},
		{"http://x", false},
		{"a b c", false},
		{"x", false},
		{"", false},
		{"foo-bar", false},
		{"taghttpterm", false},
	}
	for _, tt := range tests {
		if got := IsValidTag(tt.term); got != tt.want {
			t.Errorf("IsValidTag(%q) = %v, want %v", tt.term, got, tt.want)
		}
	}
}

func TestSelectTagsRanking(t *testing.T) {
	terms := []ExtractedTerm{
		{Term: "fox", Occurrences: 1, Strength: 1},       // score 3
		{Term: "New York", Occurrences: 4, Strength: 2},  // score 8
		{Term: "tail", Occurrences: 3, Strength: 1},      // score 5
		{Term: "http://bad", Occurrences: 9, Strength: 1}, // invalid
	}

	got := SelectTags(terms, 2)
	want := []string{"new york", "tail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SelectTags = %v, want %v", got, want)
	}
}

func TestSelectTagsSorted(t *testing.T) {
	terms := []ExtractedTerm{
		{Term: "zebra", Occurrences: 5, Strength: 1},
		{Term: "apple", Occurrences: 1, Strength: 1},
	}
	got := SelectTags(terms, 10)
	want := []string{"apple", "zebra"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SelectTags = %v, want %v", got, want)
	}
}
