package core

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sampleflow/internal/auth"
	"sampleflow/internal/blob"
	"sampleflow/internal/infra/persistence/memory"
	"sampleflow/internal/notify"
	"sampleflow/pkg/domain"
)

const testRunningOption = "dna_r9.4.1_450bps_sup.cfg"

// 2022-01-03 is the Monday of ISO week 2022-W01.
var monday = time.Date(2022, time.January, 3, 9, 30, 0, 0, time.UTC)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	svc   *Service
	clock *stubClock
	mail  *notify.Recorder
}

func newTestEnv(t *testing.T, now time.Time, opts ...Option) testEnv {
	t.Helper()
	return newTestEnvWith(t, now, memory.NewStore(NewDefaultRulesEngine()), blob.NewMemory(), opts...)
}

func newTestEnvWith(t *testing.T, now time.Time, store PersistentStore, blobs blob.Store, opts ...Option) testEnv {
	t.Helper()
	clock := &stubClock{now: now}
	mail := &notify.Recorder{}
	tokens := auth.NewTokens([]byte("0123456789abcdef-test-secret"), auth.DefaultIssuer)
	tokens.SetNow(clock.Now)
	base := []Option{
		WithClock(clock),
		WithNotifier(mail),
		WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		WithTokens(tokens),
		WithSiteURL("https://sampleflow.test"),
	}
	svc := NewService(store, blobs, append(base, opts...)...)
	return testEnv{svc: svc, clock: clock, mail: mail}
}

func (e testEnv) addSample(t *testing.T, email, name string, refs ...ReferenceFile) domain.Sample {
	t.Helper()
	sample, err := e.svc.AddSample(context.Background(), NewSample{
		Email:         email,
		Name:          name,
		RunningOption: testRunningOption,
		Concentration: 20,
		References:    refs,
	})
	if err != nil {
		t.Fatalf("add sample %s: %v", name, err)
	}
	return sample
}

func (e testEnv) sample(t *testing.T, primaryKey string) domain.Sample {
	t.Helper()
	var (
		sample domain.Sample
		found  bool
	)
	if err := e.svc.Store().View(context.Background(), func(view TransactionView) error {
		sample, found = view.FindSample(primaryKey)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if !found {
		t.Fatalf("sample %s not found", primaryKey)
	}
	return sample
}

func (e testEnv) blob(t *testing.T, key string) []byte {
	t.Helper()
	_, body, err := e.svc.Blobs().Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get blob %s: %v", key, err)
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read blob %s: %v", key, err)
	}
	return data
}

func (e testEnv) hasBlob(key string) bool {
	_, err := e.svc.Blobs().Head(context.Background(), key)
	return err == nil
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
