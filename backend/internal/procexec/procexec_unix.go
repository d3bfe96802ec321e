//go:build unix

package procexec

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup sends SIGKILL to the negative PID, which targets the
// whole process group rather than just the direct child.
func killProcessGroup(cmd *exec.Cmd) error {
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		// The group may already be gone; fall back to killing the direct child.
		return cmd.Process.Kill()
	}
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("procexec: kill process group %d: %w", pgid, err)
	}
	return nil
}

// shellCommand wraps command for execution via the Unix shell.
func shellCommand(command string) (string, []string) {
	return "sh", []string{"-c", command}
}

// signalFromState extracts the terminating signal name, if the process was
// killed by one rather than exiting normally.
func signalFromState(state *os.ProcessState) string {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return ws.Signal().String()
}
