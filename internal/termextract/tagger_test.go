package termextract

import (
	"reflect"
	"testing"
)

func newTestTagger(t *testing.T) *Tagger {
	t.Helper()
	tagger, err := NewTagger()
	if err != nil {
		t.Fatalf("NewTagger: %v", err)
	}
	return tagger
}

func TestTokenize(t *testing.T) {
	tagger := newTestTagger(t)

	tests := []struct {
		text string
		want []string
	}{
		{"fox's.", []string{"fox", "'s", "."}},
		{"can't", []string{"can", "'t"}},
		{"hello  world", []string{"hello", "world"}},
		{". Police", []string{".", "Police"}},
		{"end-of-line", []string{"end-of-line"}},
	}
	for _, tt := range tests {
		got := tagger.Tokenize(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestTagDefaultNoun(t *testing.T) {
	tagger := newTestTagger(t)

	terms := tagger.Process("Ikea")
	if want := (TaggedTerm{"Ikea", "NN", "Ikea"}); terms[0] != want {
		t.Errorf("Ikea tagged %+v, want %+v", terms[0], want)
	}

	terms = tagger.Process("Ikeas")
	if want := (TaggedTerm{"Ikeas", "NNS", "Ikea"}); terms[0] != want {
		t.Errorf("Ikeas tagged %+v, want %+v", terms[0], want)
	}
}

func TestProperNounAtSentenceStart(t *testing.T) {
	tagger := newTestTagger(t)

	terms := tagger.Process(". Police")
	if want := (TaggedTerm{".", ".", "."}); terms[0] != want {
		t.Errorf("got %+v, want %+v", terms[0], want)
	}
	if want := (TaggedTerm{"police", "NN", "police"}); terms[1] != want {
		t.Errorf("got %+v, want %+v", terms[1], want)
	}

	// Stephan is a proper noun in the lexicon and must keep its case.
	terms = tagger.Process(". Stephan")
	if want := (TaggedTerm{"Stephan", "NNP", "Stephan"}); terms[1] != want {
		t.Errorf("got %+v, want %+v", terms[1], want)
	}
}

func TestBreakContraction(t *testing.T) {
	tagger := newTestTagger(t)

	terms := tagger.Process("can't")
	if want := (TaggedTerm{"can", "MD", "can"}); terms[0] != want {
		t.Errorf("got %+v, want %+v", terms[0], want)
	}
	if want := (TaggedTerm{"'t", "RB", "'t"}); terms[1] != want {
		t.Errorf("got %+v, want %+v", terms[1], want)
	}
}

func TestSentence(t *testing.T) {
	tagger := newTestTagger(t)

	terms := tagger.Process("The fox can't jump over the fox's tail.")
	want := []TaggedTerm{
		{"The", "DT", "The"},
		{"fox", "NN", "fox"},
		{"can", "MD", "can"},
		{"'t", "RB", "'t"},
		{"jump", "VB", "jump"},
		{"over", "IN", "over"},
		{"the", "DT", "the"},
		{"fox", "NN", "fox"},
		{"'s", "POS", "'s"},
		{"tail", "NN", "tail"},
		{".", ".", "."},
	}
	if !reflect.DeepEqual(terms, want) {
		t.Errorf("Process sentence:\n got  %+v\n want %+v", terms, want)
	}
}

func TestNormalizePluralForms(t *testing.T) {
	tagger := newTestTagger(t)

	tests := []struct {
		term string
		want TaggedTerm
	}{
		{"examples", TaggedTerm{"examples", "NNS", "example"}},
		{"stresses", TaggedTerm{"stresses", "NNS", "stress"}},
		{"cherries", TaggedTerm{"cherries", "NNS", "cherry"}},
	}
	for _, tt := range tests {
		got := tagger.Process(tt.term)
		if got[0] != tt.want {
			t.Errorf("Process(%q) = %+v, want %+v", tt.term, got[0], tt.want)
		}
	}
}
