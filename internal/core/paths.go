package core

import (
	"fmt"
	"strings"
	"unicode"

	"sampleflow/pkg/domain"
)

// Blob layout, relative to the store root:
//
//	{year}/{week}/inputs/references/{key}_{name}.zip    uploaded reference files
//	{year}/{week}/inputs/references/{key}_{name}.fasta  canonical reference
//	{year}/{week}/inputs/samples.tsv                    weekly sample sheet
//	{year}/{week}/samples.zip                           bundle of inputs/
//	{year}/{week}/results/{key}_{name}.{zip,fasta,gbk}  uploaded results

func inputsPrefix(w Week) string { return w.BasePath() + "/inputs/" }

func referencesPrefix(w Week) string { return inputsPrefix(w) + "references/" }

func resultsPrefix(w Week) string { return w.BasePath() + "/results/" }

func samplesTSVKey(w Week) string { return inputsPrefix(w) + "samples.tsv" }

func samplesBundleKey(w Week) string { return w.BasePath() + "/samples.zip" }

func sampleStem(sample domain.Sample) string {
	return sample.PrimaryKey + "_" + sample.Name
}

func referenceZipKey(sample domain.Sample) string {
	return referencesPrefix(WeekOf(sample.Date)) + sampleStem(sample) + ".zip"
}

func referenceFastaKey(sample domain.Sample) string {
	return referencesPrefix(WeekOf(sample.Date)) + sampleStem(sample) + ".fasta"
}

func resultKey(sample domain.Sample, ext string) string {
	return resultsPrefix(WeekOf(sample.Date)) + sampleStem(sample) + "." + ext
}

func resultArtifactKey(sample domain.Sample, filename string) string {
	return resultsPrefix(WeekOf(sample.Date)) + filename
}

// SanitizeName makes a sample name safe to embed in blob keys: path
// separators and whitespace become underscores.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
}

// SecureFilename reduces an uploaded filename to a safe base name made of
// ASCII letters, digits, dot, dash and underscore.
func SecureFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}
	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(filename), "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "._")
}

func uniqueFilename(name string, taken map[string]bool) string {
	if !taken[name] {
		taken[name] = true
		return name
	}
	dot := strings.LastIndex(name, ".")
	stem, ext := name, ""
	if dot > 0 {
		stem, ext = name[:dot], name[dot:]
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !taken[candidate] {
			taken[candidate] = true
			return candidate
		}
	}
}
