//go:build windows

package procexec

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op on Windows: job objects would be the analogue
// of a Unix process group, but wiring them up is left for a future
// iteration. Grandchildren of a killed agent process may survive.
func setProcessGroup(cmd *exec.Cmd) {}

// shellCommand wraps command for execution via the Windows shell.
func shellCommand(command string) (string, []string) {
	return "cmd", []string{"/C", command}
}

// killProcessGroup kills only the direct child; there is no process-group
// equivalent wired up on Windows yet.
func killProcessGroup(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

// signalFromState is always empty on Windows: ExitCode() already reflects
// the effect of any terminating signal-like condition.
func signalFromState(state *os.ProcessState) string {
	return ""
}
