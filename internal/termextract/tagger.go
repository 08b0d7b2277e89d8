// Package termextract implements part-of-speech tagging and salient-term
// extraction over plain text. The tagger assigns tags from a lexicon plus a
// small ordered rule chain; the extractor aggregates noun phrases into
// candidate tags with occurrence and strength statistics.
package termextract

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

//go:embed english-lexicon.txt
var defaultLexiconFS embed.FS

// defaultNoun is assigned to terms absent from the lexicon. It is resolved
// into NN or NNS by the first rule in the chain.
const defaultNoun = "NND"

// termSpec separates a leading word run, an apostrophe-joined remainder and
// trailing punctuation, so "fox's." yields "fox", "'s" and "." as terms.
var termSpec = regexp.MustCompile(`^([-\w]*)(['\w]*);*([,.]?)$`)

// TaggedTerm is a single tokenized term with its part-of-speech tag and
// normalized (singular) form.
type TaggedTerm struct {
	Term string
	Tag  string
	Norm string
}

// Rule inspects one tagged term and may mutate it or its neighbors.
// Rules run in order for each term in document order.
type Rule func(i int, term *TaggedTerm, terms []TaggedTerm, lexicon map[string]string)

// Tagger tokenizes text and tags terms using a lexicon and a rule chain.
// A Tagger is safe for concurrent use once constructed.
type Tagger struct {
	lexicon map[string]string
	rules   []Rule
}

// NewTagger builds a Tagger with the embedded English lexicon.
func NewTagger() (*Tagger, error) {
	f, err := defaultLexiconFS.Open("english-lexicon.txt")
	if err != nil {
		return nil, fmt.Errorf("opening embedded lexicon: %w", err)
	}
	defer f.Close()
	return newTaggerFrom(f)
}

// NewTaggerFromFile builds a Tagger with a lexicon loaded from path.
// The file is line oriented: "term tag", split on spaces.
func NewTaggerFromFile(path string) (*Tagger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon %s: %w", path, err)
	}
	return newTaggerFrom(bytes.NewReader(data))
}

func newTaggerFrom(r io.Reader) (*Tagger, error) {
	lexicon, err := parseLexicon(r)
	if err != nil {
		return nil, err
	}
	return &Tagger{
		lexicon: lexicon,
		rules: []Rule{
			correctDefaultNounTag,
			determineVerbAfterModal,
			verifyProperNounAtSentenceStart,
			normalizePluralForms,
		},
	}, nil
}

func parseLexicon(r io.Reader) (map[string]string, error) {
	lexicon := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		lexicon[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	return lexicon, nil
}

// Tokenize splits text on whitespace and separates leading word runs,
// contractions and trailing punctuation into distinct terms. Tokens that do
// not match the term pattern are kept whole.
func (t *Tagger) Tokenize(text string) []string {
	var terms []string
	for _, raw := range strings.Fields(text) {
		m := termSpec.FindStringSubmatch(raw)
		if m == nil {
			terms = append(terms, raw)
			continue
		}
		for _, group := range m[1:] {
			if strings.TrimSpace(group) != "" {
				terms = append(terms, group)
			}
		}
	}
	return terms
}

// Tag assigns a part-of-speech tag to each term from the lexicon, defaulting
// to NND, then runs the rule chain once per term in document order.
func (t *Tagger) Tag(terms []string) []TaggedTerm {
	tagged := make([]TaggedTerm, 0, len(terms))
	for _, term := range terms {
		if strings.TrimSpace(term) == "" {
			continue
		}
		tag := defaultNoun
		if lt, ok := t.lexicon[term]; ok {
			tag = lt
		}
		tagged = append(tagged, TaggedTerm{Term: term, Tag: tag, Norm: term})
	}
	for i := range tagged {
		for _, rule := range t.rules {
			rule(i, &tagged[i], tagged, t.lexicon)
		}
	}
	return tagged
}

// Process tokenizes and tags text in one call.
func (t *Tagger) Process(text string) []TaggedTerm {
	return t.Tag(t.Tokenize(text))
}
