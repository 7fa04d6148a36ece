package entity

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
)

// ReadAnnotations parses a pre-resolved annotation table, one entity per
// line:
//
//	<entity id>\t<function keys, comma separated>\t<phenotype keys, comma separated>
//
// Lines starting with '#' are comments. Any number of vocabulary columns is
// accepted; a line without an entity id is malformed.
func ReadAnnotations(r io.Reader, source string) ([]Record, error) {
	var records []Record
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		id := strings.TrimSpace(fields[0])
		if id == "" {
			return nil, apperrors.NewRecord(apperrors.ErrMalformedRecord, source, lineNo, "annotation line has no entity id")
		}
		rec := Record{ID: id, Line: lineNo}
		for _, col := range fields[1:] {
			rec.Annotations = append(rec.Annotations, splitKeys(col))
		}
		records = append(records, rec)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", source, err)
	}
	return records, nil
}

func ReadAnnotationsFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening annotations %s: %w", path, err)
	}
	defer f.Close()
	return ReadAnnotations(f, path)
}

func splitKeys(col string) []string {
	parts := strings.Split(col, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}
