package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SAMPLEFLOW_DATA_PATH", dir)
	t.Setenv("SAMPLEFLOW_MAIL_DRIVER", "log")
	t.Setenv("SAMPLEFLOW_LOG_LEVEL", "error")
	t.Setenv("JWT_SECRET_KEY", "a-long-enough-test-secret")
	return dir
}

func TestCreateAdminThenToken(t *testing.T) {
	setupEnv(t)
	out, err := runCmd(t, "create-admin", "--email", "Admin@EMBL.de", "--password", "AdminPass1")
	if err != nil {
		t.Fatalf("create-admin: %v", err)
	}
	if !strings.HasPrefix(out, "Created admin admin@embl.de") {
		t.Fatalf("unexpected output %q", out)
	}
	out, err = runCmd(t, "token", "--email", "admin@embl.de", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if parts := strings.Split(strings.TrimSpace(out), "."); len(parts) != 3 {
		t.Fatalf("expected a JWT, got %q", out)
	}
	if _, err := runCmd(t, "token", "--email", "nobody@embl.de"); err == nil {
		t.Fatalf("expected unknown email error")
	}
}

func TestCreateAdminRequiresFlags(t *testing.T) {
	setupEnv(t)
	if _, err := runCmd(t, "create-admin", "--email", "admin@embl.de"); err == nil {
		t.Fatalf("expected missing password flag error")
	}
}

func TestExportWeek(t *testing.T) {
	setupEnv(t)
	out, err := runCmd(t, "export-week", "--date", "2022-01-05")
	if err != nil {
		t.Fatalf("export-week: %v", err)
	}
	if strings.TrimSpace(out) != "2022/1/samples.zip (0 samples)" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := runCmd(t, "export-week", "--date", "05.01.2022"); err == nil {
		t.Fatalf("expected invalid date error")
	}
}
