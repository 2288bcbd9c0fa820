package core

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"sampleflow/internal/blob"
	"sampleflow/internal/notify"
	"sampleflow/pkg/domain"
)

// ManifestName is the archive entry listing which files to extract and email.
const ManifestName = "email.txt"

// maxTubeHops bounds how far a chain of tube keys is followed.
const maxTubeHops = 32

// DefaultMaxArtifactBytes caps the decompressed size of one archive entry.
const DefaultMaxArtifactBytes int64 = 384 << 20

// ResultArchive is an uploaded results bundle.
type ResultArchive struct {
	Filename string
	Data     []byte
}

// ProcessResult records the outcome of sequencing a sample. Results always
// land on the original tube: a resubmitted key is followed back to the tube
// it points at. The archive is stored and the zip flag committed before the
// artifacts are extracted, so a later failure leaves the archive in place.
func (s *Service) ProcessResult(ctx context.Context, primaryKey string, success bool, archive *ResultArchive) (string, error) {
	var message string
	err := s.run(ctx, OpProcessResult, func(ctx context.Context) error {
		sample, err := s.resolveTube(ctx, primaryKey)
		if err != nil {
			return err
		}
		if !success {
			message, err = s.recordFailedResult(ctx, sample)
			return err
		}
		if archive == nil {
			return domain.ValidationError{Message: "Zip file missing"}
		}
		message, err = s.ingestArchive(ctx, sample, *archive)
		return err
	})
	return message, err
}

func (s *Service) resolveTube(ctx context.Context, primaryKey string) (domain.Sample, error) {
	key := primaryKey
	for hop := 0; hop <= maxTubeHops; hop++ {
		var (
			sample domain.Sample
			found  bool
		)
		if err := s.store.View(ctx, func(view TransactionView) error {
			sample, found = view.FindSample(key)
			return nil
		}); err != nil {
			return domain.Sample{}, err
		}
		if !found {
			return domain.Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: key, Message: fmt.Sprintf("Unknown primary key %s", key)}
		}
		if sample.TubePrimaryKey == "" || sample.TubePrimaryKey == sample.PrimaryKey {
			return sample, nil
		}
		s.logger.Info("following tube key", "primary_key", key, "tube_primary_key", sample.TubePrimaryKey)
		key = sample.TubePrimaryKey
	}
	return domain.Sample{}, fmt.Errorf("tube chain from %s exceeds %d hops", primaryKey, maxTubeHops)
}

func (s *Service) recordFailedResult(ctx context.Context, sample domain.Sample) (string, error) {
	updated, err := s.setResultFlags(ctx, sample.PrimaryKey, func(smp *domain.Sample) {
		smp.HasResultsZip = false
		smp.HasResultsFasta = false
		smp.HasResultsGbk = false
	})
	if err != nil {
		return "", err
	}
	message, sendErr := s.sendResultEmail(ctx, updated, false, nil)
	if sendErr != nil {
		return "", domain.TransportError{Message: message, Err: sendErr}
	}
	return message, nil
}

func (s *Service) ingestArchive(ctx context.Context, sample domain.Sample, archive ResultArchive) (string, error) {
	if prefix, ok := PrimaryKeyOfFilename(archive.Filename); !ok || prefix != sample.PrimaryKey {
		return "", domain.NamingMismatchError{PrimaryKey: sample.PrimaryKey, Filename: archive.Filename}
	}
	if _, err := s.blobs.Put(ctx, resultKey(sample, FileTypeZip), bytes.NewReader(archive.Data), blob.PutOptions{
		ContentType: "application/zip",
		Overwrite:   true,
	}); err != nil {
		return "", fmt.Errorf("store results archive: %w", err)
	}
	sample, err := s.setResultFlags(ctx, sample.PrimaryKey, func(smp *domain.Sample) {
		smp.HasResultsZip = true
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("results archive saved", "primary_key", sample.PrimaryKey, "key", resultKey(sample, FileTypeZip))

	zr, err := zip.NewReader(bytes.NewReader(archive.Data), int64(len(archive.Data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		// entry names are reduced to base names below
		err = nil
	}
	if err != nil {
		return "", domain.ValidationError{Message: fmt.Sprintf("Results file for %s saved, but it is not a valid zip file: %v", sample.PrimaryKey, err)}
	}
	entries := indexArchive(zr)
	wanted, err := requiredArtifacts(sample, entries, s.maxArtifactBytes)
	if err != nil {
		return "", err
	}

	var (
		attachments []notify.Attachment
		missing     []string
		extracted   = make(map[string]bool, len(wanted))
	)
	for _, name := range wanted {
		entry, ok := entries[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		data, err := readEntry(entry, s.maxArtifactBytes)
		if err != nil {
			return "", err
		}
		if _, err := s.blobs.Put(ctx, resultArtifactKey(sample, name), bytes.NewReader(data), blob.PutOptions{
			ContentType: "application/octet-stream",
			Overwrite:   true,
		}); err != nil {
			return "", fmt.Errorf("store %s: %w", name, err)
		}
		extracted[name] = true
		attachments = append(attachments, notify.Attachment{Filename: name, ContentType: "application/octet-stream", Data: data})
	}
	if len(missing) > 0 {
		return "", domain.MissingArtifactsError{PrimaryKey: sample.PrimaryKey, Files: missing}
	}

	fasta := sampleStem(sample) + "." + FileTypeFasta
	gbk := sampleStem(sample) + "." + FileTypeGbk
	sample, err = s.setResultFlags(ctx, sample.PrimaryKey, func(smp *domain.Sample) {
		smp.HasResultsFasta = extracted[fasta]
		smp.HasResultsGbk = extracted[gbk]
	})
	if err != nil {
		return "", err
	}
	message, _ := s.sendResultEmail(ctx, sample, true, attachments)
	return "Results file saved, " + message, nil
}

// indexArchive keys regular file entries by base name. Directory components
// are discarded so entries can never escape the results directory; the first
// entry wins when two share a base name.
func indexArchive(zr *zip.Reader) map[string]*zip.File {
	out := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := baseName(f.Name)
		if name == "" || name == "." || name == ".." {
			continue
		}
		if _, exists := out[name]; !exists {
			out[name] = f
		}
	}
	return out
}

// requiredArtifacts lists the files named by the manifest, or the canonical
// FASTA and GenBank files when the archive has no manifest.
func requiredArtifacts(sample domain.Sample, entries map[string]*zip.File, limit int64) ([]string, error) {
	manifest, ok := entries[ManifestName]
	if !ok {
		stem := sampleStem(sample)
		return []string{stem + "." + FileTypeFasta, stem + "." + FileTypeGbk}, nil
	}
	data, err := readEntry(manifest, limit)
	if err != nil {
		return nil, err
	}
	var names []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name := baseName(line)
		if name == "" || name == "." || name == ".." || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", ManifestName, err)
	}
	return names, nil
}

// readEntry decompresses f, refusing entries larger than limit whatever size
// the archive header claims.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	name := baseName(f.Name)
	tooLarge := domain.ValidationError{Message: fmt.Sprintf("Archive entry %s exceeds %d bytes", name, limit)}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, tooLarge
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, tooLarge
	}
	return data, nil
}

func baseName(name string) string {
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}

func (s *Service) setResultFlags(ctx context.Context, primaryKey string, mutate func(*domain.Sample)) (domain.Sample, error) {
	var updated domain.Sample
	_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateSample(primaryKey, func(smp *domain.Sample) error {
			mutate(smp)
			return nil
		})
		return err
	})
	return updated, err
}

// sendResultEmail notifies the owner of a processed sample. The returned
// message describes the outcome whether or not delivery succeeded.
func (s *Service) sendResultEmail(ctx context.Context, sample domain.Sample, success bool, attachments []notify.Attachment) (string, error) {
	stem := sampleStem(sample)
	body := fmt.Sprintf("Your sample %s has been processed", stem)
	if success {
		body += fmt.Sprintf(", and the results are attached. You can also download the full analysis data by logging in to your account at %s", s.siteURL)
	} else {
		body += ", however no correct de-novo assembly has been determined.\n\nPlease consider handing in this sample next week again."
	}
	err := s.notifier.Send(ctx, notify.Message{
		To:          sample.Email,
		Subject:     fmt.Sprintf("SampleFlow results for sample %s", stem),
		Body:        notify.Wrap(sample.Email, body, s.siteURL),
		Attachments: attachments,
	})
	if err != nil {
		s.logger.Warn("result email failed", "primary_key", sample.PrimaryKey, "email", sample.Email, "error", err)
		return fmt.Sprintf("Failed to send results email for %s to %s: %v", sample.PrimaryKey, sample.Email, err), err
	}
	s.logger.Info("result email sent", "primary_key", sample.PrimaryKey, "email", sample.Email, "success", success, "attachments", len(attachments))
	return fmt.Sprintf("Results email for %s sent to %s", sample.PrimaryKey, sample.Email), nil
}
