package reference

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
)

func TestFormatOf(t *testing.T) {
	cases := map[string]Format{
		"plasmid.gb":    FormatGenBank,
		"plasmid.GBK":   FormatGenBank,
		"plasmid.embl":  FormatEMBL,
		"plasmid.dna":   FormatSnapGene,
		"plasmid.fasta": FormatFASTA,
		"plasmid.txt":   FormatFASTA,
		"plasmid":       FormatFASTA,
	}
	for name, want := range cases {
		if got := FormatOf(name); got != want {
			t.Fatalf("FormatOf(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestParseFASTAKeepsHeaderAsSummary(t *testing.T) {
	in := "\n>pUC19 cloning vector\nACGT\nacgt\n>second\nTTTT\n"
	seq, err := Parser{}.Parse("ref.fa", []byte(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seq.ID != "pUC19" || seq.Summary() != "pUC19 cloning vector" {
		t.Fatalf("unexpected record %+v", seq)
	}
	if seq.Residues != "ACGTacgt" {
		t.Fatalf("expected first record only, got %q", seq.Residues)
	}
	if got := string(seq.FASTA()); got != ">pUC19 cloning vector\nACGTacgt\n" {
		t.Fatalf("unexpected fasta %q", got)
	}
}

func TestFASTAWrapsAtSixtyColumns(t *testing.T) {
	seq := Sequence{Format: FormatFASTA, Description: "x", Residues: strings.Repeat("A", 130)}
	lines := strings.Split(strings.TrimSuffix(string(seq.FASTA()), "\n"), "\n")
	if len(lines) != 4 || len(lines[1]) != 60 || len(lines[2]) != 60 || len(lines[3]) != 10 {
		t.Fatalf("unexpected wrapping %q", lines)
	}
}

func TestParseFailures(t *testing.T) {
	cases := []struct {
		name string
		file string
		data string
		want error
	}{
		{"empty", "a.fasta", "", ErrEmpty},
		{"no header", "a.fasta", "ACGT\n", ErrNoRecord},
		{"no residues", "a.fasta", ">only header\n", ErrNoSequence},
		{"genbank without locus", "a.gbk", "DEFINITION x\nORIGIN\n 1 acgt\n//\n", ErrNoRecord},
		{"embl without id", "a.embl", "DE x\nSQ\n acgt\n//\n", ErrNoRecord},
	}
	for _, tc := range cases {
		_, err := Parser{}.Parse(tc.file, []byte(tc.data))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if _, err := (Parser{}).Parse("a.fasta", []byte(">x\nAC#GT\n")); err == nil {
		t.Fatalf("expected invalid character error")
	}
}

const genbankRecord = `LOCUS       pGFP                      12 bp    DNA     circular SYN 01-JAN-2022
DEFINITION  Green fluorescent
            protein vector.
ACCESSION   AB000001
VERSION     AB000001.2
FEATURES             Location/Qualifiers
     source          1..12
ORIGIN
        1 atgcatgcat gc
//
`

func TestParseGenBank(t *testing.T) {
	seq, err := Parser{}.Parse("pGFP.gbk", []byte(genbankRecord))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seq.ID != "AB000001.2" || seq.Description != "Green fluorescent protein vector" {
		t.Fatalf("unexpected record %+v", seq)
	}
	if seq.Residues != "atgcatgcatgc" || seq.Summary() != "AB000001.2" {
		t.Fatalf("unexpected residues or summary %+v", seq)
	}
	if got := string(seq.FASTA()); got != ">AB000001.2 Green fluorescent protein vector\natgcatgcatgc\n" {
		t.Fatalf("unexpected fasta %q", got)
	}
}

func TestParseGenBankFallsBackToLocus(t *testing.T) {
	in := "LOCUS       pX 4 bp DNA\nORIGIN\n        1 acgt\n//\n"
	seq, err := Parser{}.Parse("x.gb", []byte(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seq.ID != "pX" {
		t.Fatalf("expected locus name as id, got %q", seq.ID)
	}
}

const emblRecord = `ID   X56734; SV 1; linear; mRNA; STD; PLN; 8 BP.
XX
AC   X56734; S46826;
XX
DE   Trifolium repens mRNA
DE   for non-cyanogenic beta-glucosidase.
XX
SQ   Sequence 8 BP;
     aaacaaac                                                                   8
//
`

func TestParseEMBL(t *testing.T) {
	seq, err := Parser{}.Parse("clover.embl", []byte(emblRecord))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seq.ID != "X56734.1" {
		t.Fatalf("unexpected id %q", seq.ID)
	}
	if seq.Description != "Trifolium repens mRNA for non-cyanogenic beta-glucosidase" {
		t.Fatalf("unexpected description %q", seq.Description)
	}
	if seq.Residues != "aaacaaac" {
		t.Fatalf("unexpected residues %q", seq.Residues)
	}
}

func snapGenePacket(kind byte, payload []byte) []byte {
	out := make([]byte, 5, 5+len(payload))
	out[0] = kind
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	return append(out, payload...)
}

func TestParseSnapGene(t *testing.T) {
	var data []byte
	data = append(data, snapGenePacket(snapGeneCookie, []byte("SnapGene\x00\x01\x00\x0f\x00\x13"))...)
	data = append(data, snapGenePacket(snapGeneDNA, []byte("\x01ACGTACGT"))...)
	data = append(data, snapGenePacket(snapGeneNotes, []byte("<Notes><CustomMapLabel>pLabel</CustomMapLabel><Description>my plasmid</Description></Notes>"))...)
	data = append(data, snapGenePacket(0x0a, []byte("ignored"))...)

	seq, err := Parser{}.Parse("vector.dna", data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seq.ID != "pLabel" || seq.Description != "my plasmid" || seq.Residues != "ACGTACGT" {
		t.Fatalf("unexpected record %+v", seq)
	}
	if seq.Summary() != "pLabel" {
		t.Fatalf("unexpected summary %q", seq.Summary())
	}
}

func TestParseSnapGeneFailures(t *testing.T) {
	noCookie := snapGenePacket(snapGeneDNA, []byte("\x01ACGT"))
	if _, err := (Parser{}).Parse("v.dna", noCookie); !errors.Is(err, errNotSnapGene) {
		t.Fatalf("expected cookie error, got %v", err)
	}
	cookie := snapGenePacket(snapGeneCookie, []byte("SnapGene"))
	if _, err := (Parser{}).Parse("v.dna", cookie); !errors.Is(err, ErrNoSequence) {
		t.Fatalf("expected missing sequence, got %v", err)
	}
	truncated := append(append([]byte{}, cookie...), snapGeneDNA, 0, 0, 0, 9, 'A')
	if _, err := (Parser{}).Parse("v.dna", truncated); err == nil {
		t.Fatalf("expected overrun error")
	}
	withoutNotes := append(append([]byte{}, cookie...), snapGenePacket(snapGeneDNA, []byte("\x00GG"))...)
	seq, err := Parser{}.Parse("fallback.dna", withoutNotes)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if seq.ID != "fallback" {
		t.Fatalf("expected file stem as id, got %q", seq.ID)
	}
}
