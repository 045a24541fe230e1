// Package processtest lets a test binary act as a disposable service process.
// A package's TestMain calls MaybeRun first; tests then spawn the command
// line returned by Argv.
package processtest

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

const modeMarker = "hsu-devlauncher-helper"

const (
	// ModeHTTP serves /health with 200 and /fail with 500 on $PORT
	ModeHTTP = "http"
	// ModeStubborn is ModeHTTP ignoring SIGTERM
	ModeStubborn = "stubborn"
	// ModeCrash prints a diagnostic and exits with status 3
	ModeCrash = "crash"
)

// MaybeRun turns the current process into a helper when its command line asks for one
func MaybeRun() {
	mode := ""
	for i, arg := range os.Args {
		if arg == modeMarker && i+1 < len(os.Args) {
			mode = os.Args[i+1]
			break
		}
	}
	if mode == "" {
		return
	}

	switch mode {
	case ModeCrash:
		fmt.Fprintln(os.Stderr, "helper: simulated startup failure, port", os.Getenv("PORT"))
		os.Exit(3)
	case ModeStubborn:
		signal.Ignore(syscall.SIGTERM)
		serve()
	case ModeHTTP:
		serve()
	default:
		fmt.Fprintln(os.Stderr, "helper: unknown mode", mode)
		os.Exit(2)
	}
	os.Exit(0)
}

func serve() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	addr := ":" + os.Getenv("PORT")
	fmt.Println("helper: listening on", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintln(os.Stderr, "helper:", err)
		os.Exit(1)
	}
}

// Argv returns a command line re-executing the test binary as a helper
func Argv(mode string) []string {
	executable, err := os.Executable()
	if err != nil {
		executable = os.Args[0]
	}
	return []string{executable, "-test.run=^$", modeMarker, mode}
}

// FreePort returns a TCP port that was free a moment ago
func FreePort(t testing.TB) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

// WaitListening blocks until something accepts connections on port
func WaitListening(t testing.TB, port int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if Listening(port) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("nothing listening on port %d after %v", port, timeout)
}

// Listening reports whether a TCP connection to the local port succeeds
func Listening(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
