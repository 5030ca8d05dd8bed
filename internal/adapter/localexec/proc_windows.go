//go:build windows

package localexec

import "os/exec"

// setProcAttr is a no-op on Windows; there is no Unix process group.
func setProcAttr(_ *exec.Cmd) {}

// killProcessGroup kills the direct process on Windows.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
