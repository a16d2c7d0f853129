// Command cookieconv converts a browser JSON cookie export (one or more
// concatenated arrays) into the Netscape cookies.txt the server reads.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/reelfetch/backend/internal/credentials"
)

func main() {
	var (
		in  = flag.String("in", "cookies.json", "Browser JSON cookie export")
		out = flag.String("out", "cookies.txt", "Netscape cookie file to write")
	)
	flag.Parse()

	if err := run(*in, *out, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "cookieconv: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out string, stdout io.Writer) error {
	src, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(out), ".cookies-*.txt")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	summary, err := credentials.ConvertJSON(src, tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	fmt.Fprintf(stdout, "Converted %s to %s\n", in, out)
	fmt.Fprintf(stdout, "Total cookies: %d\n", summary.Total)
	if len(summary.Platforms) > 0 {
		fmt.Fprintf(stdout, "Platforms: %s\n", strings.Join(summary.Platforms, ", "))
	}
	return nil
}
