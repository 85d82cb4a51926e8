//go:build linux

package job

import "golang.org/x/sys/unix"

// ioctlGetTermios/ioctlSetTermios are the Linux termios ioctl requests
// used to save and restore a foreground job's terminal modes around a
// terminal-ownership handoff (spec §4.D "saved terminal modes").
const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)
