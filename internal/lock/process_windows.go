//go:build windows

package lock

import (
	"errors"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code reported for a running process
const stillActive = 259

// processAlive opens pid and checks it has not exited. Access denied means
// the process exists under another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return errors.Is(err, windows.ERROR_ACCESS_DENIED)
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return true
	}
	return code == stillActive
}
