//go:build unix

package localexec

import (
	"os/exec"
	"syscall"
)

// setProcAttr places the command in its own process group so the whole
// shell pipeline can be killed as a unit.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills the command's process group. Shell descendants die
// with it; killing only the direct child would leave them running and Wait
// blocked on their inherited pipes.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
