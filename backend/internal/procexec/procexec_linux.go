//go:build linux

package procexec

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places cmd in a new process group and asks the kernel to
// SIGTERM the child if this supervising process dies first (Pdeathsig).
// The signal goes to the direct child only, not to the rest of its group.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
