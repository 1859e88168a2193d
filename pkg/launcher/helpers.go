package launcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/browserkit/pkg/transport"
)

// BrowserCloseMessageID is the request id of the graceful close message. It
// never collides with ids handed out by BaseSession.Call.
const BrowserCloseMessageID = -9999

// NoXServerMessage explains a headed launch on a host without a display.
const NoXServerMessage = "Looks like you launched a headed browser without having a XServer running.\n" +
	"Set either 'headless: true' or use 'xvfb-run <your-app>' before running browserkit."

// SendBrowserClose writes the graceful close request for method.
func SendBrowserClose(t transport.Transport, method string) error {
	data, err := json.Marshal(struct {
		ID     int            `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}{ID: BrowserCloseMessageID, Method: method, Params: map[string]any{}})
	if err != nil {
		return err
	}
	return t.Send(data)
}

// UserDataDirArgError rejects profile arguments passed through Args.
func UserDataDirArgError(arg string) error {
	return &ValidationError{
		Field:   "args",
		Message: fmt.Sprintf("Pass userDataDir parameter to LaunchPersistentContext(userDataDir, options) instead of specifying '%s' argument", arg),
	}
}

// FindArgPrefix returns the first arg starting with any of prefixes.
func FindArgPrefix(args []string, prefixes ...string) (string, bool) {
	for _, arg := range args {
		for _, prefix := range prefixes {
			if strings.HasPrefix(arg, prefix) {
				return arg, true
			}
		}
	}
	return "", false
}

// ReplaceLogs swaps the browser output attached to a launch error for hint
// when the output contains any of needles. Other errors pass through.
func ReplaceLogs(err error, hint string, needles ...string) error {
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		return err
	}
	output := strings.Join(launchErr.Logs, "\n")
	for _, needle := range needles {
		if strings.Contains(output, needle) {
			return &LaunchError{Err: launchErr.Err, Logs: []string{"", Box(hint, 1)}}
		}
	}
	return err
}

// Box frames text in an ASCII box with padding spaces around each line.
func Box(text string, padding int) string {
	lines := strings.Split(text, "\n")
	width := 0
	for _, line := range lines {
		if len(line) > width {
			width = len(line)
		}
	}
	pad := strings.Repeat(" ", padding)
	border := strings.Repeat("═", width+2*padding)

	var b strings.Builder
	b.WriteString("╔" + border + "╗\n")
	for _, line := range lines {
		b.WriteString("║" + pad + line + strings.Repeat(" ", width-len(line)) + pad + "║\n")
	}
	b.WriteString("╚" + border + "╝")
	return b.String()
}
