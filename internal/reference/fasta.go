package reference

import (
	"strings"
)

func parseFASTA(text string) (Sequence, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, ">") {
			return Sequence{}, ErrNoRecord
		}
		start = i
		break
	}
	if start < 0 {
		return Sequence{}, ErrNoRecord
	}

	header := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[start]), ">"))
	var body strings.Builder
	for _, line := range lines[start+1:] {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			break
		}
		body.WriteString(line)
	}
	residues, err := cleanResidues(body.String())
	if err != nil {
		return Sequence{}, err
	}
	id := header
	if f := strings.Fields(header); len(f) > 0 {
		id = f[0]
	}
	return Sequence{ID: id, Description: header, Residues: residues}, nil
}
