//go:build unix

package toolchain

import (
	"os/exec"
	"syscall"
)

// isolate starts cmd in its own process group and kills the whole group on
// cancellation, so children forked by the program do not outlive it.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
