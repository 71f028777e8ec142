//go:build windows

package main

import (
	"os"

	"golang.org/x/term"
)

// listenForKeyboard puts the console in raw mode and dispatches keys.
func listenForKeyboard(c *console) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer term.Restore(fd, oldState)

	c.readKeys(os.Stdin.Read)
}
