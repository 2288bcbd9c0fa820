package core

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"sampleflow/internal/blob"
	"sampleflow/pkg/domain"
)

var samplesTSVHeader = []string{"date", "primary_key", "tube_primary_key", "email", "name", "running_option", "concentration"}

// WriteSamplesTSV writes one tab separated row per sample, ordered by id.
func WriteSamplesTSV(w io.Writer, samples []domain.Sample) error {
	ordered := make([]domain.Sample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(samplesTSVHeader); err != nil {
		return err
	}
	for _, sample := range ordered {
		if err := cw.Write([]string{
			sample.Date.Format(time.DateOnly),
			sample.PrimaryKey,
			sample.TubePrimaryKey,
			sample.Email,
			sample.Name,
			sample.RunningOption,
			strconv.Itoa(sample.Concentration),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export describes the files written for one week.
type Export struct {
	Week      Week   `json:"-"`
	SheetKey  string `json:"sheet_key"`
	BundleKey string `json:"bundle_key"`
	Samples   int    `json:"samples"`
}

// ExportWeek writes the sample sheet of the week containing day and bundles
// everything under the week's inputs into samples.zip.
func (s *Service) ExportWeek(ctx context.Context, day time.Time) (Export, error) {
	var out Export
	err := s.run(ctx, OpExportWeek, func(ctx context.Context) error {
		var err error
		out, err = s.exportWeek(ctx, day)
		return err
	})
	return out, err
}

func (s *Service) exportWeek(ctx context.Context, day time.Time) (Export, error) {
	week := WeekOf(day)
	span := WeekRangeOf(day)
	var samples []domain.Sample
	if err := s.store.View(ctx, func(view TransactionView) error {
		samples = view.SamplesBetween(span.Start, span.End)
		return nil
	}); err != nil {
		return Export{}, err
	}

	var sheet bytes.Buffer
	if err := WriteSamplesTSV(&sheet, samples); err != nil {
		return Export{}, fmt.Errorf("write sample sheet: %w", err)
	}
	sheetKey := samplesTSVKey(week)
	if _, err := s.blobs.Put(ctx, sheetKey, &sheet, blob.PutOptions{
		ContentType: "text/tab-separated-values",
		Overwrite:   true,
	}); err != nil {
		return Export{}, fmt.Errorf("store sample sheet: %w", err)
	}

	bundle, err := s.bundle(ctx, inputsPrefix(week))
	if err != nil {
		return Export{}, err
	}
	bundleKey := samplesBundleKey(week)
	if _, err := s.blobs.Put(ctx, bundleKey, bytes.NewReader(bundle), blob.PutOptions{
		ContentType: "application/zip",
		Overwrite:   true,
	}); err != nil {
		return Export{}, fmt.Errorf("store sample bundle: %w", err)
	}
	s.logger.Info("week exported", "week", week.String(), "samples", len(samples), "bundle", bundleKey)
	return Export{Week: week, SheetKey: sheetKey, BundleKey: bundleKey, Samples: len(samples)}, nil
}

// bundle zips every blob under prefix using names relative to it.
func (s *Service) bundle(ctx context.Context, prefix string) ([]byte, error) {
	infos, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	dirs := make(map[string]bool)
	for _, info := range infos {
		rel := strings.TrimPrefix(info.Key, prefix)
		if rel == "" {
			continue
		}
		parts := strings.Split(rel, "/")
		for i := 1; i < len(parts); i++ {
			dir := strings.Join(parts[:i], "/") + "/"
			if dirs[dir] {
				continue
			}
			dirs[dir] = true
			if _, err := zw.Create(dir); err != nil {
				return nil, fmt.Errorf("zip %s: %w", dir, err)
			}
		}
		if err := s.zipBlob(ctx, zw, info.Key, rel); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close bundle: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) zipBlob(ctx context.Context, zw *zip.Writer, key, name string) error {
	_, body, err := s.blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	return nil
}

// ZipSamples exports the current week and opens the resulting bundle.
func (s *Service) ZipSamples(ctx context.Context) (Download, error) {
	var out Download
	err := s.run(ctx, OpExportWeek, func(ctx context.Context) error {
		export, err := s.exportWeek(ctx, s.today())
		if err != nil {
			return err
		}
		out, err = s.open(ctx, export.BundleKey, "Sample bundle not found")
		return err
	})
	return out, err
}
