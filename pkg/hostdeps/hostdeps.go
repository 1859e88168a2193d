// Package hostdeps checks that the host has the shared libraries a browser
// executable links against.
package hostdeps

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/logging"
)

// Debian package names for libraries browsers commonly miss on minimal hosts.
var debianPackages = map[string]string{
	"libasound.so.2":           "libasound2",
	"libatk-1.0.so.0":          "libatk1.0-0",
	"libatk-bridge-2.0.so.0":   "libatk-bridge2.0-0",
	"libatspi.so.0":            "libatspi2.0-0",
	"libcups.so.2":             "libcups2",
	"libdbus-1.so.3":           "libdbus-1-3",
	"libdrm.so.2":              "libdrm2",
	"libgbm.so.1":              "libgbm1",
	"libgtk-3.so.0":            "libgtk-3-0",
	"libnspr4.so":              "libnspr4",
	"libnss3.so":               "libnss3",
	"libpango-1.0.so.0":        "libpango-1.0-0",
	"libx11-xcb.so.1":          "libx11-xcb1",
	"libxcb.so.1":              "libxcb1",
	"libXcomposite.so.1":       "libxcomposite1",
	"libXdamage.so.1":          "libxdamage1",
	"libXfixes.so.3":           "libxfixes3",
	"libxkbcommon.so.0":        "libxkbcommon0",
	"libXrandr.so.2":           "libxrandr2",
	"libwoff2dec.so.1.0.2":     "libwoff1",
	"libgstreamer-1.0.so.0":    "libgstreamer1.0-0",
	"libmanette-0.2.so.0":      "libmanette-0.2-0",
	"libenchant-2.so.2":        "libenchant-2-2",
	"libsecret-1.so.0":         "libsecret-1-0",
	"libhyphen.so.0":           "libhyphen0",
	"libevdev.so.2":            "libevdev2",
	"libdbus-glib-1.so.2":      "libdbus-glib-1-2",
	"libXtst.so.6":             "libxtst6",
	"libgdk-3.so.0":            "libgtk-3-0",
	"libcairo.so.2":            "libcairo2",
	"libcairo-gobject.so.2":    "libcairo-gobject2",
	"libpangocairo-1.0.so.0":   "libpangocairo-1.0-0",
	"libgdk_pixbuf-2.0.so.0":   "libgdk-pixbuf-2.0-0",
	"libharfbuzz-icu.so.0":     "libharfbuzz-icu0",
	"libgstbase-1.0.so.0":      "libgstreamer1.0-0",
	"libgstvideo-1.0.so.0":     "libgstreamer-plugins-base1.0-0",
	"libgstreamer-gl-1.0.so.0": "libgstreamer-gl1.0-0",
}

type runFunc func(ctx context.Context, name string, args, env []string) ([]byte, error)

// Validator runs ldd against an executable and reports unresolved
// libraries. Hosts without ldd are assumed to be fine.
type Validator struct {
	logger *logging.Logger
	goos   string
	run    runFunc
}

// New returns an ldd based validator.
func New(logger *logging.Logger) *Validator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Validator{logger: logger, goos: runtime.GOOS, run: runCommand}
}

// Validate implements launcher.HostValidator.
func (v *Validator) Validate(ctx context.Context, executable, family string) error {
	if v.goos != "linux" {
		return nil
	}
	// Browsers ship private libraries next to the binary.
	dir := filepath.Dir(executable)
	env := append(os.Environ(), "LD_LIBRARY_PATH="+dir+pathListSuffix(os.Getenv("LD_LIBRARY_PATH")))

	out, err := v.run(ctx, "ldd", []string{executable}, env)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	missing := parseMissing(out)
	if len(missing) == 0 {
		if err != nil {
			v.logger.Debugf("skipping host validation for %s: %v", executable, err)
		}
		return nil
	}
	return &launcher.HostRequirementError{Family: family, Missing: missing}
}

// InstallHint returns an apt-get command for the missing libraries it
// recognizes, or "".
func InstallHint(missing []string) string {
	seen := map[string]bool{}
	var packages []string
	for _, lib := range missing {
		pkg, ok := debianPackages[lib]
		if !ok || seen[pkg] {
			continue
		}
		seen[pkg] = true
		packages = append(packages, pkg)
	}
	if len(packages) == 0 {
		return ""
	}
	sort.Strings(packages)
	return "sudo apt-get install " + strings.Join(packages, " ")
}

// parseMissing extracts "libfoo.so => not found" entries from ldd output.
func parseMissing(out []byte) []string {
	seen := map[string]bool{}
	var missing []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lib, rest, ok := strings.Cut(line, "=>")
		if !ok || strings.TrimSpace(rest) != "not found" {
			continue
		}
		lib = strings.TrimSpace(lib)
		if lib == "" || seen[lib] {
			continue
		}
		seen[lib] = true
		missing = append(missing, lib)
	}
	sort.Strings(missing)
	return missing
}

func pathListSuffix(existing string) string {
	if existing == "" {
		return ""
	}
	return string(os.PathListSeparator) + existing
}

func runCommand(ctx context.Context, name string, args, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	return cmd.CombinedOutput()
}
