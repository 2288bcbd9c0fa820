package core

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"sampleflow/internal/blob"
	"sampleflow/internal/reference"
	"sampleflow/pkg/domain"
)

// ReferenceFile is one uploaded reference sequence file.
type ReferenceFile struct {
	Filename string
	Data     []byte
}

// NewSample carries a submission. Email is the authenticated owner.
type NewSample struct {
	Email         string
	Name          string
	RunningOption string
	Concentration int
	References    []ReferenceFile
}

// SampleLists partitions samples into the current ISO week and everything
// before it, newest first.
type SampleLists struct {
	Current  []domain.Sample `json:"current_samples"`
	Previous []domain.Sample `json:"previous_samples"`
}

// Download is an opened stored file. Callers must close Body. When URL is
// set the file is served by the blob store and Body is nil.
type Download struct {
	Filename    string
	ContentType string
	Size        int64
	URL         string
	Body        io.ReadCloser
}

// AddSample allocates the next plate slot of the current week and records the
// submission. Capacity, running option and reference files are checked before
// anything is persisted; no sample is created when any check fails.
func (s *Service) AddSample(ctx context.Context, in NewSample) (domain.Sample, error) {
	var created domain.Sample
	err := s.run(ctx, OpAddSample, func(ctx context.Context) error {
		name := SanitizeName(in.Name)
		if name == "" {
			return domain.ValidationError{Message: "Sample name missing"}
		}
		if in.Concentration < 0 {
			return domain.ValidationError{Message: "Concentration must not be negative"}
		}
		today := s.today()
		var written []string
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			version, err := ensureSettings(tx, s.now())
			if err != nil {
				return err
			}
			settings, err := domain.ResolveSettings(version.Values)
			if err != nil {
				return err
			}
			if !settings.AllowsRunningOption(in.RunningOption) {
				return domain.ValidationError{Message: fmt.Sprintf("Invalid running option '%s'", in.RunningOption)}
			}
			key, err := allocateSlot(tx, settings, today)
			if err != nil {
				return err
			}
			sample := domain.Sample{
				Email:          in.Email,
				PrimaryKey:     key,
				TubePrimaryKey: key,
				Name:           name,
				RunningOption:  in.RunningOption,
				Concentration:  in.Concentration,
				Date:           today,
			}
			if len(in.References) > 0 {
				keys, err := s.storeReferences(ctx, &sample, in.References)
				written = append(written, keys...)
				if err != nil {
					return err
				}
			}
			created, err = tx.CreateSample(sample)
			return err
		})
		if err != nil {
			s.discardBlobs(ctx, written)
			return err
		}
		s.logger.Info("sample created", "primary_key", created.PrimaryKey, "email", created.Email, "references", len(in.References))
		return nil
	})
	return created, err
}

// storeReferences parses every upload, then writes the originals as a zip and
// the first record as canonical FASTA. It returns the keys written so far,
// even on error.
func (s *Service) storeReferences(ctx context.Context, sample *domain.Sample, files []ReferenceFile) ([]string, error) {
	var first reference.Sequence
	for i, f := range files {
		seq, err := s.parser.Parse(f.Filename, f.Data)
		if err != nil {
			return nil, domain.ParseError{Filename: f.Filename, Err: err}
		}
		if i == 0 {
			first = seq
		}
	}

	archive, err := zipReferences(files)
	if err != nil {
		return nil, err
	}
	var written []string
	zipKey := referenceZipKey(*sample)
	if _, err := s.blobs.Put(ctx, zipKey, bytes.NewReader(archive), blob.PutOptions{
		ContentType: "application/zip",
		Overwrite:   true,
	}); err != nil {
		return written, fmt.Errorf("store reference archive: %w", err)
	}
	written = append(written, zipKey)
	fastaKey := referenceFastaKey(*sample)
	if _, err := s.blobs.Put(ctx, fastaKey, bytes.NewReader(first.FASTA()), blob.PutOptions{
		ContentType: "text/plain",
		Overwrite:   true,
	}); err != nil {
		return written, fmt.Errorf("store reference fasta: %w", err)
	}
	written = append(written, fastaKey)
	summary := first.Summary()
	sample.HasReferenceSeqZip = true
	sample.ReferenceSequenceDescription = &summary
	return written, nil
}

// discardBlobs removes files written for a sample whose insert was rolled
// back. Failures are logged and otherwise ignored.
func (s *Service) discardBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.Warn("orphaned file not removed", "key", key, "error", err)
			continue
		}
		s.logger.Debug("orphaned file removed", "key", key)
	}
}

func zipReferences(files []ReferenceFile) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	taken := make(map[string]bool, len(files))
	for i, f := range files {
		name := SecureFilename(f.Filename)
		if name == "" {
			name = fmt.Sprintf("reference_%d", i+1)
		}
		w, err := zw.Create(uniqueFilename(name, taken))
		if err != nil {
			return nil, fmt.Errorf("zip reference %s: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("zip reference %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip references: %w", err)
	}
	return buf.Bytes(), nil
}

// GetSamples lists samples owned by email, or every sample when email is
// empty.
func (s *Service) GetSamples(ctx context.Context, email string) (SampleLists, error) {
	out := SampleLists{Current: []domain.Sample{}, Previous: []domain.Sample{}}
	err := s.run(ctx, OpGetSamples, func(ctx context.Context) error {
		start := StartOfWeek(s.now())
		owner := domain.NormalizeEmail(email)
		return s.store.View(ctx, func(view TransactionView) error {
			for _, sample := range view.ListSamples() {
				if owner != "" && domain.NormalizeEmail(sample.Email) != owner {
					continue
				}
				if sample.Date.Before(start) {
					out.Previous = append(out.Previous, sample)
				} else {
					out.Current = append(out.Current, sample)
				}
			}
			return nil
		})
	})
	sortNewestFirst(out.Current)
	sortNewestFirst(out.Previous)
	return out, err
}

func sortNewestFirst(samples []domain.Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		if !samples[i].Date.Equal(samples[j].Date) {
			return samples[i].Date.After(samples[j].Date)
		}
		return samples[i].ID > samples[j].ID
	})
}

// visibleSample returns the sample if requester may read it. Admins see every
// sample; other users only their own.
func (s *Service) visibleSample(ctx context.Context, requester domain.User, primaryKey string) (domain.Sample, error) {
	var (
		sample domain.Sample
		found  bool
	)
	if err := s.store.View(ctx, func(view TransactionView) error {
		sample, found = view.FindSample(primaryKey)
		return nil
	}); err != nil {
		return domain.Sample{}, err
	}
	if !found || (!requester.IsAdmin && domain.NormalizeEmail(sample.Email) != domain.NormalizeEmail(requester.Email)) {
		return domain.Sample{}, domain.NotFoundError{Entity: domain.EntitySample, ID: primaryKey, Message: "Sample not found"}
	}
	return sample, nil
}

// ReferenceSequence opens the canonical FASTA stored for a sample.
func (s *Service) ReferenceSequence(ctx context.Context, requester domain.User, primaryKey string) (Download, error) {
	var out Download
	err := s.run(ctx, OpReferenceSequence, func(ctx context.Context) error {
		sample, err := s.visibleSample(ctx, requester, primaryKey)
		if err != nil {
			return err
		}
		if sample.ReferenceSequenceDescription == nil {
			return domain.NotFoundError{Entity: domain.EntitySample, ID: primaryKey, Message: "Sample does not contain a reference sequence"}
		}
		out, err = s.open(ctx, referenceFastaKey(sample), "Fasta file not found")
		return err
	})
	return out, err
}

// Result file types that can be downloaded.
const (
	FileTypeFasta = "fasta"
	FileTypeGbk   = "gbk"
	FileTypeZip   = "zip"
)

// ResultFile opens one of the result files of a sample.
func (s *Service) ResultFile(ctx context.Context, requester domain.User, primaryKey, filetype string) (Download, error) {
	var out Download
	err := s.run(ctx, OpResultFile, func(ctx context.Context) error {
		if filetype != FileTypeFasta && filetype != FileTypeGbk && filetype != FileTypeZip {
			return domain.ValidationError{Message: fmt.Sprintf("Invalid filetype %s requested", filetype)}
		}
		sample, err := s.visibleSample(ctx, requester, primaryKey)
		if err != nil {
			return err
		}
		available := map[string]bool{
			FileTypeFasta: sample.HasResultsFasta,
			FileTypeGbk:   sample.HasResultsGbk,
			FileTypeZip:   sample.HasResultsZip,
		}[filetype]
		if !available {
			return domain.NotFoundError{Entity: domain.EntitySample, ID: primaryKey, Message: fmt.Sprintf("No %s results available", filetype)}
		}
		out, err = s.open(ctx, resultKey(sample, filetype), fmt.Sprintf("Results %s file not found", filetype))
		return err
	})
	return out, err
}

func (s *Service) open(ctx context.Context, key, missing string) (Download, error) {
	if s.presignTTL > 0 {
		dl, ok, err := s.presigned(ctx, key, missing)
		if err != nil || ok {
			return dl, err
		}
	}
	info, body, err := s.blobs.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return Download{}, domain.NotFoundError{Message: missing}
	}
	if err != nil {
		return Download{}, fmt.Errorf("open %s: %w", key, err)
	}
	return Download{
		Filename:    baseName(key),
		ContentType: info.ContentType,
		Size:        info.Size,
		Body:        body,
	}, nil
}

// presigned returns a download served directly by the blob store. ok is false
// when the store cannot sign URLs.
func (s *Service) presigned(ctx context.Context, key, missing string) (Download, bool, error) {
	info, err := s.blobs.Head(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return Download{}, false, domain.NotFoundError{Message: missing}
	}
	if err != nil {
		return Download{}, false, fmt.Errorf("stat %s: %w", key, err)
	}
	url, err := s.blobs.PresignURL(ctx, key, blob.SignedURLOptions{Method: "GET", Expiry: s.presignTTL})
	if errors.Is(err, blob.ErrUnsupported) {
		return Download{}, false, nil
	}
	if err != nil {
		return Download{}, false, fmt.Errorf("presign %s: %w", key, err)
	}
	return Download{
		Filename:    baseName(key),
		ContentType: info.ContentType,
		Size:        info.Size,
		URL:         url,
	}, true, nil
}
