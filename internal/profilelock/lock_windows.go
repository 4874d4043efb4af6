//go:build windows

package profilelock

import "golang.org/x/sys/windows"

const stillActive = 259

// isPIDRunning opens the process with the minimum rights needed to read its
// exit code. Failure to open (access denied, already gone) is reported as
// indeterminate rather than definitely-dead, matching the original's
// conservative stance.
func isPIDRunning(pid int) (running bool, known bool) {
	if pid <= 0 {
		return false, true
	}

	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false, false
	}
	defer windows.CloseHandle(h)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(h, &exitCode); err != nil {
		return false, false
	}
	return exitCode == stillActive, true
}
