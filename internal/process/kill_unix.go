//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup makes the child the leader of a new process group so the
// whole tree it spawns can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// killProcessTree sends SIGKILL to the process group led by pid, falling
// back to the single process when it is not a group leader.
func killProcessTree(pid int) error {
	pgErr := syscall.Kill(-pid, syscall.SIGKILL)
	if pgErr == nil {
		return nil
	}
	if errors.Is(pgErr, syscall.ESRCH) || errors.Is(pgErr, syscall.EPERM) {
		return syscall.Kill(pid, syscall.SIGKILL)
	}
	return pgErr
}

// killOrphanedGroup kills what is left of the process group once its leader
// has exited. An empty group is not an error.
func killOrphanedGroup(pgid int) error {
	err := syscall.Kill(-pgid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return errNoProcess
	}
	return err
}

// Personal.AI order the ending
