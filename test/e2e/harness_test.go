//go:build e2e

package e2e

import (
	"bufio"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scanLines copies lines from a child process's stdout/stderr into a
// channel so tests can observe its logs in near real-time.
func scanLines(r io.ReadCloser, out chan<- string) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		out <- s.Text()
	}
}

// waitForReady blocks until a log line containing needle appears or a
// short timeout elapses. It is the first readiness signal before a test
// harness probes its process's listener directly.
func waitForReady(t *testing.T, logC <-chan string, needle string) bool {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case line := <-logC:
			if strings.Contains(line, needle) {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

// exeName returns the executable name for the current OS (adds .exe on
// Windows), so the E2E harnesses build and run binaries portably.
func exeName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
