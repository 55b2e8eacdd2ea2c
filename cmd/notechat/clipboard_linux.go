//go:build linux

package main

import "fmt"

// readClipboard returns an error: the clipboard library needs cgo and X11 on Linux.
func readClipboard() (string, error) {
	return "", fmt.Errorf("clipboard not available on this platform (Linux without X11)")
}
