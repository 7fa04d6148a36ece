package ontology

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
)

const maxOBOLine = 4 * 1024 * 1024

// ReadOBO collects [Term] stanzas from an OBO document. Other stanza types
// and unrecognised tags are ignored.
func ReadOBO(r io.Reader, source string) ([]Record, error) {
	var (
		records []Record
		cur     *Record
		inTerm  bool
		lineNo  int
	)
	flush := func() error {
		if cur == nil {
			return nil
		}
		if cur.ID == "" {
			return apperrors.NewRecord(apperrors.ErrMalformedRecord, source, cur.Line, "[Term] stanza without id")
		}
		records = append(records, *cur)
		cur = nil
		return nil
	}

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxOBOLine)
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if err := flush(); err != nil {
				return nil, err
			}
			inTerm = line == "[Term]"
			if inTerm {
				cur = &Record{Line: lineNo}
			}
			continue
		}
		if !inTerm {
			continue
		}
		tag, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch tag {
		case "id":
			cur.ID = value
		case "name":
			cur.Name = value
		case "namespace":
			cur.Namespace = value
		case "is_a":
			if idx := strings.Index(value, " ! "); idx >= 0 {
				value = value[:idx]
			}
			if value = strings.TrimSpace(value); value != "" {
				cur.IsA = append(cur.IsA, value)
			}
		case "is_obsolete":
			cur.IsObsolete = value == "true"
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", source, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return records, nil
}

// LoadOBO reads and builds a graph in one step.
func LoadOBO(r io.Reader, name string) (*Graph, error) {
	records, err := ReadOBO(r, name)
	if err != nil {
		return nil, err
	}
	return NewGraph(name, records)
}

func LoadOBOFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ontology %s: %w", path, err)
	}
	defer f.Close()
	g, err := LoadOBO(f, path)
	if err != nil {
		return nil, fmt.Errorf("loading ontology %s: %w", path, err)
	}
	return g, nil
}
