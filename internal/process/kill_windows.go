//go:build windows

package process

import (
	"os/exec"
	"strconv"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.CreationFlags |= syscall.CREATE_NEW_PROCESS_GROUP
}

// killProcessTree force-kills pid and all of its descendants.
func killProcessTree(pid int) error {
	return exec.Command("taskkill", "/pid", strconv.Itoa(pid), "/T", "/F").Run()
}

// killOrphanedGroup is a no-op: taskkill cannot reach descendants once
// the parent is gone.
func killOrphanedGroup(pgid int) error {
	return errNoProcess
}

// Personal.AI order the ending
