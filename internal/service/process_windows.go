//go:build windows

package service

import (
	"os"
	"os/exec"
)

// configureProcAttr is a no-op on Windows; there is no process-group
// signalling to set up, and Kill terminates the process directly.
func configureProcAttr(cmd *exec.Cmd) {}

func terminateProcess(p *os.Process) error { return p.Kill() }

func killProcess(p *os.Process) error { return p.Kill() }
