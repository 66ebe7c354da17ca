package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.pid")
	os.WriteFile(good, []byte("4242\n"), 0644)
	if pid, err := readPID(good); err != nil || pid != 4242 {
		t.Errorf("readPID() = %d, %v; want 4242, nil", pid, err)
	}

	bad := filepath.Join(dir, "bad.pid")
	os.WriteFile(bad, []byte("not-a-pid"), 0644)
	if _, err := readPID(bad); err == nil {
		t.Error("readPID() should fail on garbage")
	}

	if _, err := readPID(filepath.Join(dir, "missing.pid")); err == nil {
		t.Error("readPID() should fail on a missing file")
	}
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	if !isRunning(srv.URL) {
		t.Error("isRunning() = false; want true for a healthy daemon")
	}

	addr := srv.URL
	srv.Close()
	if isRunning(addr) {
		t.Error("isRunning() = true; want false once the daemon is gone")
	}
}
