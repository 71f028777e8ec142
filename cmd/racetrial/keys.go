package main

import (
	"fmt"

	"github.com/abrezinsky/racetrial/internal/browser"
	"github.com/abrezinsky/racetrial/internal/logger"
)

// console holds what the keyboard shortcuts act on.
type console struct {
	launcher *browser.Launcher
	log      *logger.SlogLogger
	quit     func()
}

// handleKey performs the action bound to key. It reports false once the server is
// shutting down.
func (c *console) handleKey(key byte) bool {
	switch key {
	case 'a', 'A':
		fmt.Println(cyan.Sprint("Opening race control in browser..."))
		if err := c.launcher.OpenAdmin(); err != nil {
			fmt.Println(red.Sprintf("Error opening browser: %v", err))
		}
	case 'b', 'B':
		fmt.Println(cyan.Sprint("Opening live board in browser..."))
		if err := c.launcher.OpenBoard(); err != nil {
			fmt.Println(red.Sprintf("Error opening browser: %v", err))
		}
	case 'h', 'H':
		if c.log.IsHTTPLoggingEnabled() {
			c.log.DisableHTTPLogging()
			fmt.Println(yellow.Sprint("HTTP logging disabled"))
		} else {
			c.log.EnableHTTPLogging()
			fmt.Println(green.Sprint("HTTP logging enabled"))
		}
	case 'l', 'L':
		cycleLogLevel(c.log)
	case '?':
		printKeyboardHelp()
	case 'q', 'Q', 0x03: // 0x03 is Ctrl+C in raw mode
		c.quit()
		return false
	}
	return true
}

// readKeys feeds single bytes from read to handleKey until quit or a read error.
func (c *console) readKeys(read func([]byte) (int, error)) {
	buf := make([]byte, 1)
	for {
		n, err := read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		if !c.handleKey(buf[0]) {
			return
		}
	}
}
