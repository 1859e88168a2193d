//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func configureProcAttr(cmd *exec.Cmd) {}

func killProcess(proc *os.Process) error {
	return proc.Kill()
}

func exitSignal(state *os.ProcessState) string {
	return ""
}

func raiseSignal(sig os.Signal) {
	os.Exit(130)
}
