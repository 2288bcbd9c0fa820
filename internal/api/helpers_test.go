package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"sampleflow/internal/auth"
	"sampleflow/internal/core"
	"sampleflow/internal/notify"
)

const (
	testRunningOption = "dna_r9.4.1_450bps_sup.cfg"
	testAdminEmail    = "admin@embl.de"
	testAdminPassword = "AdminPass1"
	testUserEmail     = "jo@embl.de"
	testUserPassword  = "Secret123"
)

// 2022-01-03 is the Monday of ISO week 2022-W01.
var monday = time.Date(2022, time.January, 3, 9, 30, 0, 0, time.UTC)

type testAPI struct {
	svc      *core.Service
	mail     *notify.Recorder
	server   *httptest.Server
	registry *prometheus.Registry
}

func newTestAPI(t *testing.T, cfg RouterConfig) *testAPI {
	t.Helper()
	now := func() time.Time { return monday }
	tokens := auth.NewTokens([]byte("0123456789abcdef-test-secret"), auth.DefaultIssuer)
	tokens.SetNow(now)
	mail := &notify.Recorder{}
	svc := core.NewInMemoryService(
		core.WithClock(core.ClockFunc(now)),
		core.WithNotifier(mail),
		core.WithPasswordHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		core.WithTokens(tokens),
		core.WithSiteURL("https://sampleflow.test"),
	)
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	server := httptest.NewServer(NewRouter(svc, cfg))
	t.Cleanup(server.Close)
	return &testAPI{svc: svc, mail: mail, server: server, registry: cfg.Registry}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testAPI) postJSON(t *testing.T, path, token string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return a.do(t, http.MethodPost, path, token, bytes.NewReader(data), "application/json")
}

func (a *testAPI) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := a.postJSON(t, "/api/login", "", map[string]string{"email": email, "password": password})
	expectStatus(t, resp, http.StatusOK)
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, resp, &out)
	if out.AccessToken == "" {
		t.Fatalf("login returned no token")
	}
	return out.AccessToken
}

func (a *testAPI) adminToken(t *testing.T) string {
	t.Helper()
	if _, err := a.svc.CreateAdmin(context.Background(), testAdminEmail, testAdminPassword); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return a.login(t, testAdminEmail, testAdminPassword)
}

// userToken signs up and activates a user through the HTTP surface.
func (a *testAPI) userToken(t *testing.T) string {
	t.Helper()
	resp := a.postJSON(t, "/api/signup", "", map[string]string{"email": testUserEmail, "password": testUserPassword})
	expectStatus(t, resp, http.StatusOK)
	msg, ok := a.mail.Last()
	if !ok {
		t.Fatalf("no activation email sent")
	}
	token := linkToken(t, msg.Body, "/activate/")
	resp = a.do(t, http.MethodGet, "/api/activate/"+token, "", nil, "")
	expectStatus(t, resp, http.StatusOK)
	return a.login(t, testUserEmail, testUserPassword)
}

func linkToken(t *testing.T, body, marker string) string {
	t.Helper()
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no %s link in %q", marker, body)
	}
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func message(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out struct {
		Message string `json:"message"`
	}
	decode(t, resp, &out)
	return out.Message
}

type formPart struct {
	field    string
	filename string
	content  []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formPart) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := w.Write(f.content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
