package reference

import (
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// SnapGene files are a sequence of packets: a one byte type, a big-endian
// uint32 length and the payload. The cookie packet must come first.
const (
	snapGeneDNA    byte = 0x00
	snapGeneNotes  byte = 0x06
	snapGeneCookie byte = 0x09
)

var errNotSnapGene = errors.New("missing SnapGene cookie")

type snapGeneNotesXML struct {
	CustomMapLabel string `xml:"CustomMapLabel"`
	Description    string `xml:"Description"`
}

func parseSnapGene(data []byte, fallbackID string) (Sequence, error) {
	var (
		seq       Sequence
		haveDNA   bool
		first     = true
		remaining = data
	)
	for len(remaining) > 0 {
		if len(remaining) < 5 {
			return Sequence{}, fmt.Errorf("truncated packet header")
		}
		kind := remaining[0]
		size := binary.BigEndian.Uint32(remaining[1:5])
		remaining = remaining[5:]
		if uint64(size) > uint64(len(remaining)) {
			return Sequence{}, fmt.Errorf("packet 0x%02x overruns file", kind)
		}
		payload := remaining[:size]
		remaining = remaining[size:]

		if first {
			if kind != snapGeneCookie || len(payload) < 8 || string(payload[:8]) != "SnapGene" {
				return Sequence{}, errNotSnapGene
			}
			first = false
			continue
		}
		switch kind {
		case snapGeneDNA:
			if len(payload) < 1 {
				return Sequence{}, ErrNoSequence
			}
			residues, err := cleanResidues(string(payload[1:]))
			if err != nil {
				return Sequence{}, err
			}
			seq.Residues = residues
			haveDNA = true
		case snapGeneNotes:
			var notes snapGeneNotesXML
			if err := xml.Unmarshal(payload, &notes); err != nil {
				return Sequence{}, fmt.Errorf("notes: %w", err)
			}
			seq.ID = strings.TrimSpace(notes.CustomMapLabel)
			seq.Description = strings.TrimSpace(notes.Description)
		}
	}
	if first {
		return Sequence{}, errNotSnapGene
	}
	if !haveDNA {
		return Sequence{}, ErrNoSequence
	}
	if seq.ID == "" {
		seq.ID = fallbackID
	}
	return seq, nil
}
