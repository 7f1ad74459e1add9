//go:build windows

package async

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
