package cli

import (
	"strings"
	"testing"
)

func TestResolveVersionInfo_LdflagsOverride(t *testing.T) {
	origV, origC, origD := version, commit, date
	defer func() { version, commit, date = origV, origC, origD }()

	version, commit, date = "0.4.0", "abc1234", "2026-01-02"
	v, c, d := resolveVersionInfo()
	if v != "0.4.0" || c != "abc1234" || d != "2026-01-02" {
		t.Errorf("expected ldflags values to win, got %q %q %q", v, c, d)
	}
}

func TestResolveVersionInfo_DevFallback(t *testing.T) {
	origV, origC, origD := version, commit, date
	defer func() { version, commit, date = origV, origC, origD }()

	version, commit, date = "dev", "unknown", "unknown"
	v, c, d := resolveVersionInfo()
	if v == "" {
		t.Error("version should not be empty")
	}
	if len(c) > 12 {
		t.Errorf("commit should be shortened, got %q", c)
	}
	t.Logf("resolved: version=%s commit=%s date=%s", v, c, d)
}

func TestRootCmd_LongListsExitCodes(t *testing.T) {
	for _, code := range []string{"0  -", "2  -", "10 -", "11 -", "12 -"} {
		if !strings.Contains(rootCmd.Long, code) {
			t.Errorf("root help is missing exit code line %q", code)
		}
	}
}
