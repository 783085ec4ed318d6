package video

import "testing"

func TestTerminalBucket(t *testing.T) {
	cases := map[string]string{
		"CANCELLED_BY_USER":          "cancel",
		"error: quota 4f1c-99":       "error",
		"task-expired-20260101T0930": "expired",
		"rendering":                  "",
		"queued #12873":              "",
	}
	for raw, want := range cases {
		got, ok := terminalBucket(raw)
		if got != want || ok != (want != "") {
			t.Errorf("terminalBucket(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}
}
