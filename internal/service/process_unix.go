//go:build unix

package service

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcAttr places the upstream in its own process group so
// shutdown can signal the whole tree: npm/npx-style shims spawn the
// real server as a child, and killing only the shim would leave it
// running.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcess asks the upstream's process group to exit. A group
// that is already gone is not an error.
func terminateProcess(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

// killProcess forcibly ends the upstream's process group.
func killProcess(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}
