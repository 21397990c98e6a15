package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"BuildID", KeyBuildID, "b-1", BuildID("b-1")},
		{"Step", KeyStep, "ResourceLink", Step("ResourceLink")},
		{"Strategy", KeyStrategy, "remote", Strategy("remote")},
		{"State", KeyState, "Dispatching", State("Dispatching")},
		{"Tool", KeyTool, "/opt/aapt2", Tool("/opt/aapt2")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Repository", KeyRepo, "o/r", Repository("o/r")},
		{"Branch", KeyBranch, "main", Branch("main")},
		{"SHA", KeySHA, "abc", SHA("abc")},
		{"Status", KeyStatus, "queued", Status("queued")},
		{"Conclusion", KeyConclusion, "success", Conclusion("success")},
		{"URL", KeyURL, "http://example", URL("http://example")},
		{"Method", KeyMethod, "GET", Method("GET")},
		{"Subject", KeySubject, "pkgbuilder.builds.success", Subject("pkgbuilder.builds.success")},
		{"Command", KeyCommand, "d8 --lib a.jar", Command("d8 --lib a.jar")},
		{"Delay", KeyDelay, "1.5s", Delay(1500 * time.Millisecond)},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if v := RunID(42); v.Key != KeyRunID || v.Value.Int64() != 42 {
		t.Fatalf("RunID mismatch: %v", v)
	}
	if v := ExitCode(3); v.Key != KeyExitCode {
		t.Fatalf("ExitCode key mismatch: %s", v.Key)
	}
	if v := Attempt(2); v.Key != KeyAttempt {
		t.Fatalf("Attempt key mismatch: %s", v.Key)
	}
	if v := HTTPStatus(503); v.Key != KeyHTTPStatus {
		t.Fatalf("HTTPStatus key mismatch: %s", v.Key)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	if attr := Error(nil); attr.Value.String() != "" {
		t.Fatalf("expected empty error string, got %s", attr.Value.String())
	}
	if attr := Error(errors.New("boom")); attr.Value.String() != "boom" {
		t.Fatalf("expected boom, got %s", attr.Value.String())
	}
}
