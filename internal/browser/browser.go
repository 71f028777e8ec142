package browser

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

// Commander starts external programs. Tests swap it for a recorder.
type Commander interface {
	Start(name string, args ...string) error
}

// RealCommander executes actual commands
type RealCommander struct{}

// Start runs the command without waiting for it to exit.
func (RealCommander) Start(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// Launcher opens pages of a locally running server in the desktop browser.
type Launcher struct {
	base string
	cmd  Commander
	goos string
}

// NewLauncher returns a Launcher for the server listening on port.
func NewLauncher(port int) *Launcher {
	return &Launcher{base: fmt.Sprintf("http://localhost:%d", port), cmd: RealCommander{}, goos: runtime.GOOS}
}

// AdminURL is the race control dashboard.
func (l *Launcher) AdminURL() string {
	return l.base + "/admin"
}

// BoardURL is the live board, optionally filtered to one event.
func (l *Launcher) BoardURL(eventID string) string {
	if eventID == "" {
		return l.base + "/"
	}
	return l.base + "/?event=" + url.QueryEscape(eventID)
}

// OpenAdmin opens the dashboard.
func (l *Launcher) OpenAdmin() error {
	return OpenWithCommander(l.AdminURL(), l.cmd, l.goos)
}

// OpenBoard opens the live board for every event.
func (l *Launcher) OpenBoard() error {
	return OpenWithCommander(l.BoardURL(""), l.cmd, l.goos)
}

// Open opens the specified URL in the default browser
func Open(rawURL string) error {
	return OpenWithCommander(rawURL, RealCommander{}, runtime.GOOS)
}

// OpenWithCommander opens rawURL with the platform's opener. Only http and https URLs
// are accepted.
func OpenWithCommander(rawURL string, commander Commander, goos string) error {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return fmt.Errorf("refusing to open non-http url %q", rawURL)
	}

	var name string
	var args []string
	switch goos {
	case "linux", "freebsd", "openbsd":
		name, args = "xdg-open", []string{rawURL}
	case "darwin":
		name, args = "open", []string{rawURL}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", rawURL}
	default:
		return fmt.Errorf("unsupported platform: %s", goos)
	}
	return commander.Start(name, args...)
}
