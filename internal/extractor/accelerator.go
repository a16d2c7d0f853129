package extractor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// probeBinary runs "<path> --version" and reports whether it exited cleanly.
var probeBinary = func(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, path, "--version").Run() == nil
}

// acceleratorCandidates lists where aria2c is usually installed on goos.
func acceleratorCandidates(goos string) []string {
	switch goos {
	case "windows":
		var out []string
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			out = append(out, filepath.Join(local, "Microsoft", "WinGet", "Links", "aria2c.exe"))
		}
		return append(out,
			`C:\Program Files\aria2\aria2c.exe`,
			`C:\ProgramData\chocolatey\bin\aria2c.exe`,
			`C:\aria2\aria2c.exe`,
		)
	case "darwin":
		return []string{"/opt/homebrew/bin/aria2c", "/usr/local/bin/aria2c"}
	default:
		return []string{"/usr/bin/aria2c", "/usr/local/bin/aria2c", "/snap/bin/aria2c"}
	}
}

// DetectAccelerator looks for a working aria2c: the configured path first,
// then PATH, then the usual install locations for this OS. Not finding one
// is normal and just means single-connection downloads.
func DetectAccelerator(ctx context.Context, configured string) (string, bool) {
	candidates := make([]string, 0, 8)
	if configured != "" {
		candidates = append(candidates, configured)
	}
	if p, err := exec.LookPath("aria2c"); err == nil {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, acceleratorCandidates(runtime.GOOS)...)

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if probeBinary(ctx, c) {
			return c, true
		}
	}
	return "", false
}
