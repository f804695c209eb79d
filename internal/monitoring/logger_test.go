package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerAndMute(t *testing.T) {
	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	defer SetLogger(nil)

	Logf("[TEST] %d", 1)
	restore := Mute()
	Logf("[TEST] %d", 2)
	restore()
	Logf("[TEST] %d", 3)

	if len(got) != 2 || got[0] != "[TEST] 1" || got[1] != "[TEST] 3" {
		t.Fatalf("unexpected log lines: %v", got)
	}
}
