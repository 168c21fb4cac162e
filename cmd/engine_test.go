package cmd

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// captureStdout returns what fn printed to stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	w.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestCLINotifierKeepsRemoteErrorsInLog(t *testing.T) {
	var logged bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logged, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	printed := captureStdout(t, func() {
		cliNotifier{}.RemoteError(errors.New("dial tcp: connection refused"))
	})
	if printed != "" {
		t.Errorf("remote error reached the cashier: %q", printed)
	}
	if !strings.Contains(logged.String(), "connection refused") {
		t.Errorf("remote error not logged: %q", logged.String())
	}
}

func TestCLINotifierPrintsSynced(t *testing.T) {
	printed := captureStdout(t, func() {
		cliNotifier{}.Synced(3)
	})
	if !strings.Contains(printed, "3 pending record(s) synced") {
		t.Errorf("got %q", printed)
	}
}
