//go:build !unix

package extractor

import "os/exec"

func killGroupOnCancel(cmd *exec.Cmd) {}
