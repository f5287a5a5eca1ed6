package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// isolateEnv points HOME at a temp dir and clears every key the CLI reads,
// so neither the developer's profile nor their shell leaks into a test.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		envDriver, envDSN, envCatalog, envPaging, envExportDir, envPublishURL, envLogLevel, envOutput,
		"EXPORT_PAGE_SIZE", "LOG_FORMAT", "ENV",
	} {
		t.Setenv(key, "")
	}
	return home
}

// runCLI executes a fresh root command with args and returns what it wrote to
// stdout and stderr.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// containsIgnoreCase checks if s contains substr (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
