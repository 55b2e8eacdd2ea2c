//go:build !linux

package main

import (
	"fmt"

	"golang.design/x/clipboard"
)

// readClipboard returns the text held by the system clipboard.
func readClipboard() (string, error) {
	if err := clipboard.Init(); err != nil {
		return "", fmt.Errorf("clipboard unavailable: %w", err)
	}
	return string(clipboard.Read(clipboard.FmtText)), nil
}
