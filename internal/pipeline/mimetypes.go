package pipeline

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

//go:embed mime.types
var defaultMimeTypes []byte

//go:embed ignore.types
var defaultIgnoreTypes []byte

// MimeTable maps mimetypes to file extensions. Lines are
// "mimetype ext ext..."; the first line whose mimetype matches wins, and the
// first extension on that line is the canonical one.
type MimeTable struct {
	lines [][]string
}

// DefaultMimeTable parses the embedded mapping.
func DefaultMimeTable() *MimeTable {
	t, err := ParseMimeTable(bytes.NewReader(defaultMimeTypes))
	if err != nil {
		// The embedded table is parsed at init time by callers; a broken
		// embed is a programming error, not a runtime condition.
		panic(err)
	}
	return t
}

// LoadMimeTable reads a mapping file in the embedded table's format.
func LoadMimeTable(path string) (*MimeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mime table %s: %w", path, err)
	}
	defer f.Close()
	return ParseMimeTable(f)
}

// ParseMimeTable parses whitespace-separated mimetype/extension lines,
// skipping blanks and # comments.
func ParseMimeTable(r io.Reader) (*MimeTable, error) {
	var t MimeTable
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("mime table line %q has no extensions", line)
		}
		t.lines = append(t.lines, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mime table: %w", err)
	}
	return &t, nil
}

// ExtensionFor returns the canonical extension for a mimetype, or "" when the
// type is unknown.
func (t *MimeTable) ExtensionFor(mimetype string) string {
	mt := normalizeMimetype(mimetype)
	for _, fields := range t.lines {
		if fields[0] == mt {
			return fields[1]
		}
	}
	return ""
}

// TypeSet is a line-oriented set of mimetypes.
type TypeSet map[string]struct{}

// DefaultIgnoreTypes parses the embedded never-preview list.
func DefaultIgnoreTypes() TypeSet {
	s, err := ParseTypeSet(bytes.NewReader(defaultIgnoreTypes))
	if err != nil {
		panic(err)
	}
	return s
}

// NewTypeSet builds a set from explicit mimetypes.
func NewTypeSet(types ...string) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		if t = normalizeMimetype(t); t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

// ParseTypeSet reads one mimetype per line, skipping blanks and # comments.
func ParseTypeSet(r io.Reader) (TypeSet, error) {
	s := make(TypeSet)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s[normalizeMimetype(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading type set: %w", err)
	}
	return s, nil
}

// Contains reports membership, ignoring case and parameters.
func (s TypeSet) Contains(mimetype string) bool {
	_, ok := s[normalizeMimetype(mimetype)]
	return ok
}

// normalizeMimetype lowercases and strips ";charset=..." style parameters.
func normalizeMimetype(mimetype string) string {
	mt := strings.ToLower(strings.TrimSpace(mimetype))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// sniffMimetype detects the content type from the file's leading bytes.
// application/octet-stream is the sniffer's "no idea" answer and is reported
// as empty so the stored mimetype is not overridden by a non-result.
func sniffMimetype(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	mt := normalizeMimetype(http.DetectContentType(buf[:n]))
	if mt == "application/octet-stream" {
		return "", nil
	}
	return mt, nil
}
