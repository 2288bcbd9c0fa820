package core

import (
	"context"
	"errors"
	"fmt"

	"sampleflow/internal/blob"
	"sampleflow/pkg/domain"
)

// ResubmitSample allocates a fresh slot of the current week for the tube of an
// existing sample. The original record is not modified; the new sample keeps
// pointing at the original tube.
func (s *Service) ResubmitSample(ctx context.Context, primaryKey string) (string, error) {
	var message string
	err := s.run(ctx, OpResubmitSample, func(ctx context.Context) error {
		today := s.today()
		var (
			created domain.Sample
			written []string
		)
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			original, ok := tx.FindSample(primaryKey)
			if !ok {
				return domain.NotFoundError{Entity: domain.EntitySample, ID: primaryKey, Message: fmt.Sprintf("Unknown Primary Key '%s'", primaryKey)}
			}
			version, err := ensureSettings(tx, s.now())
			if err != nil {
				return err
			}
			settings, err := domain.ResolveSettings(version.Values)
			if err != nil {
				return err
			}
			key, err := allocateSlot(tx, settings, today)
			if err != nil {
				return err
			}
			sample := domain.Sample{
				Email:              domain.ResubmittedOwner,
				PrimaryKey:         key,
				TubePrimaryKey:     original.TubePrimaryKey,
				Name:               original.Name,
				RunningOption:      original.RunningOption,
				Concentration:      original.Concentration,
				Date:               today,
				HasReferenceSeqZip: original.HasReferenceSeqZip,
			}
			if original.ReferenceSequenceDescription != nil {
				description := *original.ReferenceSequenceDescription
				sample.ReferenceSequenceDescription = &description
			}
			keys, err := s.copyReferences(ctx, original, sample)
			written = append(written, keys...)
			if err != nil {
				return err
			}
			created, err = tx.CreateSample(sample)
			return err
		})
		if err != nil {
			s.discardBlobs(ctx, written)
			return err
		}
		message = fmt.Sprintf("Resubmitted sample '%s' with new primary key '%s'", primaryKey, created.PrimaryKey)
		s.logger.Info("sample resubmitted", "primary_key", primaryKey, "new_primary_key", created.PrimaryKey, "tube_primary_key", created.TubePrimaryKey)
		return nil
	})
	return message, err
}

func (s *Service) copyReferences(ctx context.Context, from, to domain.Sample) ([]string, error) {
	if !from.HasReferenceSeqZip && from.ReferenceSequenceDescription == nil {
		return nil, nil
	}
	pairs := [][2]string{
		{referenceZipKey(from), referenceZipKey(to)},
		{referenceFastaKey(from), referenceFastaKey(to)},
	}
	var written []string
	for _, pair := range pairs {
		copied, err := s.copyBlob(ctx, pair[0], pair[1])
		if copied {
			written = append(written, pair[1])
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (s *Service) copyBlob(ctx context.Context, src, dst string) (bool, error) {
	info, body, err := s.blobs.Get(ctx, src)
	if errors.Is(err, blob.ErrNotFound) {
		s.logger.Warn("reference file missing on resubmit", "key", src)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = body.Close() }()
	if _, err := s.blobs.Put(ctx, dst, body, blob.PutOptions{ContentType: info.ContentType, Overwrite: true}); err != nil {
		return false, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return true, nil
}
