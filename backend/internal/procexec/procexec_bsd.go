//go:build darwin || freebsd || netbsd || openbsd

package procexec

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places cmd in a new process group. Pdeathsig has no
// equivalent outside Linux, so on these platforms the child is not
// signalled when the orchestrator crashes; ExecutionTracker's
// orphan-recovery sweep on the next start only marks its execution failed.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
