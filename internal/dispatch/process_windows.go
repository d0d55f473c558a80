//go:build windows

package dispatch

import "os/exec"

// setProcessGroup keeps the default cancellation, which kills only the
// command itself; WaitDelay bounds how long its children can hold the
// output open.
func setProcessGroup(cmd *exec.Cmd) {}
