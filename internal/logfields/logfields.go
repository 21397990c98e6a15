package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStep       = "step"
	KeyStepIndex  = "step_index"
	KeyStrategy   = "strategy"
	KeyState      = "state"
	KeyTool       = "tool"
	KeyCommand    = "command"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyRepo       = "repository"
	KeyBranch     = "branch"
	KeySHA        = "sha"
	KeyRunID      = "run_id"
	KeyStatus     = "status"
	KeyConclusion = "conclusion"
	KeyAttempt    = "attempt"
	KeyDelay      = "delay"
	KeyURL        = "url"
	KeyMethod     = "method"
	KeyHTTPStatus = "http_status"
	KeySchedule   = "schedule_name"
	KeySubject    = "subject"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Step(name string) slog.Attr      { return slog.String(KeyStep, name) }
func StepIndex(i int) slog.Attr       { return slog.Int(KeyStepIndex, i) }
func Strategy(s string) slog.Attr     { return slog.String(KeyStrategy, s) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Tool(path string) slog.Attr      { return slog.String(KeyTool, path) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func SHA(sha string) slog.Attr        { return slog.String(KeySHA, sha) }
func RunID(id int64) slog.Attr        { return slog.Int64(KeyRunID, id) }
func Status(s string) slog.Attr       { return slog.String(KeyStatus, s) }
func Conclusion(c string) slog.Attr   { return slog.String(KeyConclusion, c) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr       { return slog.String(KeyMethod, m) }
func HTTPStatus(code int) slog.Attr   { return slog.Int(KeyHTTPStatus, code) }
func ScheduleName(n string) slog.Attr { return slog.String(KeySchedule, n) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func Delay(d interface{ String() string }) slog.Attr {
	return slog.String(KeyDelay, d.String())
}

// Command takes the rendered command line; callers redact secrets first.
func Command(line string) slog.Attr { return slog.String(KeyCommand, line) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
