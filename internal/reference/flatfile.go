package reference

import (
	"strings"
)

// GenBank keywords occupy the first 12 columns; continuation lines start with
// whitespace.
func parseGenBank(text string) (Sequence, error) {
	var (
		locus, accession, version string
		definition                []string
		body                      strings.Builder
		inDefinition, inOrigin    bool
		seenLocus                 bool
	)
	for _, line := range splitLines(text) {
		if inOrigin {
			if strings.HasPrefix(line, "//") {
				break
			}
			body.WriteString(line)
			continue
		}
		if line == "" {
			continue
		}
		keyword := line
		if i := strings.IndexAny(line, " \t"); i >= 0 {
			keyword = line[:i]
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, keyword))
		if keyword == "" {
			if inDefinition {
				definition = append(definition, strings.TrimSpace(line))
			}
			continue
		}
		inDefinition = false
		switch keyword {
		case "LOCUS":
			seenLocus = true
			if f := strings.Fields(rest); len(f) > 0 {
				locus = f[0]
			}
		case "DEFINITION":
			inDefinition = true
			definition = append(definition, rest)
		case "ACCESSION":
			if f := strings.Fields(rest); len(f) > 0 {
				accession = f[0]
			}
		case "VERSION":
			if f := strings.Fields(rest); len(f) > 0 {
				version = f[0]
			}
		case "ORIGIN":
			inOrigin = true
		}
		if keyword == "//" {
			break
		}
	}
	if !seenLocus {
		return Sequence{}, ErrNoRecord
	}
	residues, err := cleanResidues(body.String())
	if err != nil {
		return Sequence{}, err
	}
	return Sequence{
		ID:          firstNonEmpty(version, accession, locus),
		Description: strings.TrimSuffix(strings.Join(definition, " "), "."),
		Residues:    residues,
	}, nil
}

// EMBL lines carry a two letter code followed by three spaces.
func parseEMBL(text string) (Sequence, error) {
	var (
		name, accession, version string
		description              []string
		body                     strings.Builder
		inSequence, seenID       bool
	)
	for _, line := range splitLines(text) {
		if strings.HasPrefix(line, "//") {
			break
		}
		if inSequence {
			body.WriteString(line)
			continue
		}
		if len(line) < 2 {
			continue
		}
		code := line[:2]
		rest := strings.TrimSpace(line[2:])
		switch code {
		case "ID":
			seenID = true
			parts := strings.Split(rest, ";")
			name = strings.TrimSpace(parts[0])
			for _, part := range parts[1:] {
				part = strings.TrimSpace(part)
				if strings.HasPrefix(part, "SV ") {
					version = strings.TrimSpace(strings.TrimPrefix(part, "SV "))
				}
			}
		case "AC":
			if accession == "" {
				accession = strings.TrimSpace(strings.Split(rest, ";")[0])
			}
		case "SV":
			if v := strings.TrimSpace(rest); v != "" {
				if i := strings.LastIndex(v, "."); i >= 0 {
					version = v[i+1:]
				} else {
					version = v
				}
			}
		case "DE":
			description = append(description, rest)
		case "SQ":
			inSequence = true
		}
	}
	if !seenID {
		return Sequence{}, ErrNoRecord
	}
	residues, err := cleanResidues(body.String())
	if err != nil {
		return Sequence{}, err
	}
	id := firstNonEmpty(accession, name)
	if version != "" && accession != "" {
		id = accession + "." + version
	}
	return Sequence{
		ID:          id,
		Description: strings.TrimSuffix(strings.Join(description, " "), "."),
		Residues:    residues,
	}, nil
}

func splitLines(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return lines
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
