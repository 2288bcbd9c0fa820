// Package reference reads uploaded reference sequence files and renders them
// as canonical FASTA.
//
// The format is guessed from the file extension: .gb and .gbk are GenBank,
// .embl is EMBL, .dna is SnapGene and everything else is treated as FASTA.
// Only the first record of a multi-record file is used.
package reference

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format names a supported reference file format.
type Format string

// Supported formats.
const (
	FormatFASTA    Format = "fasta"
	FormatGenBank  Format = "genbank"
	FormatEMBL     Format = "embl"
	FormatSnapGene Format = "snapgene"
)

const fastaLineWidth = 60

var (
	// ErrEmpty is returned for zero-length uploads.
	ErrEmpty = errors.New("file is empty")
	// ErrNoRecord is returned when no record header could be located.
	ErrNoRecord = errors.New("no sequence record found")
	// ErrNoSequence is returned when a record carries no residues.
	ErrNoSequence = errors.New("record contains no sequence")
)

// Sequence is the first record of a reference file.
type Sequence struct {
	Format      Format
	ID          string
	Description string
	Residues    string
}

// Summary is the human readable label stored with a sample. FASTA uploads keep
// their full header line; the annotated formats are summarized by record id.
func (s Sequence) Summary() string {
	if s.Format == FormatFASTA {
		return s.Description
	}
	return s.ID
}

// FASTA renders the record as a single FASTA entry wrapped at 60 columns.
func (s Sequence) FASTA() []byte {
	var b strings.Builder
	b.WriteByte('>')
	b.WriteString(s.header())
	b.WriteByte('\n')
	for i := 0; i < len(s.Residues); i += fastaLineWidth {
		end := i + fastaLineWidth
		if end > len(s.Residues) {
			end = len(s.Residues)
		}
		b.WriteString(s.Residues[i:end])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func (s Sequence) header() string {
	if s.Format == FormatFASTA {
		return s.Description
	}
	switch {
	case s.Description == "" || s.Description == s.ID:
		return s.ID
	case s.ID == "":
		return s.Description
	default:
		return s.ID + " " + s.Description
	}
}

// FormatOf guesses the format of filename from its extension.
func FormatOf(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".gb", ".gbk":
		return FormatGenBank
	case ".embl":
		return FormatEMBL
	case ".dna":
		return FormatSnapGene
	default:
		return FormatFASTA
	}
}

// Parser turns uploaded files into sequences. The zero value is ready to use.
type Parser struct{}

// Parse reads the first record of data, choosing the format from filename.
func (Parser) Parse(filename string, data []byte) (Sequence, error) {
	if len(data) == 0 {
		return Sequence{}, ErrEmpty
	}
	format := FormatOf(filename)
	var (
		seq Sequence
		err error
	)
	switch format {
	case FormatGenBank:
		seq, err = parseGenBank(string(data))
	case FormatEMBL:
		seq, err = parseEMBL(string(data))
	case FormatSnapGene:
		seq, err = parseSnapGene(data, stem(filename))
	default:
		seq, err = parseFASTA(string(data))
	}
	if err != nil {
		return Sequence{}, fmt.Errorf("%s: %w", format, err)
	}
	seq.Format = format
	return seq, nil
}

func stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// cleanResidues drops whitespace and position counters and rejects anything
// that is not an IUPAC letter, gap or stop symbol.
func cleanResidues(raw string) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == ' ', r == '\t', r == '\r', r == '\n', r >= '0' && r <= '9':
			continue
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r == '-', r == '*', r == '.':
			b.WriteRune(r)
		default:
			return "", fmt.Errorf("unexpected character %q in sequence", r)
		}
	}
	if b.Len() == 0 {
		return "", ErrNoSequence
	}
	return b.String(), nil
}
