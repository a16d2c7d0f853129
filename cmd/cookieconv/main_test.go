package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cookies.json")
	out := filepath.Join(dir, "cookies.txt")

	export := `[{"domain":".youtube.com","name":"SID","value":"v","secure":true,"expirationDate":1790000000}]`
	if err := os.WriteFile(in, []byte(export), 0o600); err != nil {
		t.Fatal(err)
	}

	var stdout bytes.Buffer
	if err := run(in, out, &stdout); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), ".youtube.com\tTRUE\t/\tTRUE\t1790000000\tSID\tv") {
		t.Errorf("output missing cookie line:\n%s", data)
	}
	if !strings.Contains(stdout.String(), "Platforms: YouTube") {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestRun_BadExportLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cookies.json")
	out := filepath.Join(dir, "cookies.txt")
	os.WriteFile(in, []byte("[]"), 0o600)

	if err := run(in, out, &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail on an empty export")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output should not exist, stat err = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}
