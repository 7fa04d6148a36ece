package ontology

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/errors"
)

const sampleOBO = `format-version: 1.2
ontology: hp

[Term]
id: HP:0000001
name: All

[Term]
id: HP:0000118
name: Phenotypic abnormality
is_a: HP:0000001 ! All

[Term]
id: HP:0000707
name: Abnormality of the nervous system
namespace: human_phenotype
is_a: HP:0000118 ! Phenotypic abnormality

[Term]
id: HP:9999999
name: retired
is_obsolete: true

[Typedef]
id: part_of
name: part of
is_a: HP:0000001
`

func TestReadOBO(t *testing.T) {
	records, err := ReadOBO(strings.NewReader(sampleOBO), "hp.obo")
	if err != nil {
		t.Fatalf("ReadOBO: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4 (typedef ignored)", len(records))
	}
	r := records[2]
	if r.ID != "HP:0000707" || r.Namespace != "human_phenotype" {
		t.Errorf("record = %+v", r)
	}
	if len(r.IsA) != 1 || r.IsA[0] != "HP:0000118" {
		t.Errorf("IsA = %v, comment after ' ! ' should be stripped", r.IsA)
	}
	if !records[3].IsObsolete {
		t.Error("is_obsolete not parsed")
	}
	if records[1].Line != 8 {
		t.Errorf("Line = %d, want 8", records[1].Line)
	}
}

func TestLoadOBO(t *testing.T) {
	g, err := LoadOBO(strings.NewReader(sampleOBO), "hp")
	if err != nil {
		t.Fatalf("LoadOBO: %v", err)
	}
	if g.Len() != 3 {
		t.Errorf("Len = %d, want 3", g.Len())
	}
	if got := strings.Join(g.Ancestors("HP:0000707"), ","); got != "HP:0000707,HP:0000118,HP:0000001" {
		t.Errorf("Ancestors = %s", got)
	}
	if g.TermName("HP:0000118") != "Phenotypic abnormality" {
		t.Errorf("TermName = %q", g.TermName("HP:0000118"))
	}
}

func TestReadOBOMissingID(t *testing.T) {
	doc := "[Term]\nid: X:1\n\n[Term]\nname: no id here\n"
	_, err := ReadOBO(strings.NewReader(doc), "broken.obo")
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Fatalf("err = %v, want ErrMalformedRecord", err)
	}
	if !strings.Contains(err.Error(), "broken.obo:4") {
		t.Errorf("err = %q, want source and line", err)
	}
}

func TestLoadOBOFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hp.obo")
	if err := os.WriteFile(path, []byte(sampleOBO), 0644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadOBOFile(path)
	if err != nil {
		t.Fatalf("LoadOBOFile: %v", err)
	}
	if !g.Contains("HP:0000001") {
		t.Error("root missing")
	}
	if _, err := LoadOBOFile(filepath.Join(t.TempDir(), "missing.obo")); err == nil {
		t.Error("expected error for missing file")
	}
}
