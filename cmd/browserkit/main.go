// Command browserkit launches browsers, attaches to running ones and
// installs browser builds.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/entrhq/browserkit/pkg/config"
	"github.com/entrhq/browserkit/pkg/hostdeps"
	"github.com/entrhq/browserkit/pkg/launcher"
	"github.com/entrhq/browserkit/pkg/logging"
	"github.com/entrhq/browserkit/pkg/registry"
)

const version = "0.1.0"

// env is what every command needs: settings, a logger and launcher options
// derived from both.
type env struct {
	section *config.LauncherSection
	logger  *logging.Logger
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var hostErr *launcher.HostRequirementError
		if errors.As(err, &hostErr) {
			if hint := hostdeps.InstallHint(hostErr.Missing); hint != "" {
				fmt.Fprintf(os.Stderr, "\nInstall them with:\n    %s\n", hint)
			}
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "launch":
		return runLaunch(args[1:])
	case "connect":
		return runConnect(args[1:])
	case "install":
		return runInstall(args[1:])
	case "version", "--version":
		fmt.Printf("browserkit v%s\n", version)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `browserkit - launch and attach to browsers

Usage:
  browserkit launch [browser] [flags]     start chromium, firefox or webkit
  browserkit connect <endpoint> [flags]   attach to a running chromium
  browserkit install [browser...]         download browser builds

Run "browserkit <command> --help" for command flags.

Environment:
  BROWSERKIT_CONFIG              config file (default ~/.browserkit/config.json)
  BROWSERKIT_LOG_DIR             log directory (default ~/.browserkit/logs)
  BROWSERKIT_<BROWSER>_EXECUTABLE  executable override, e.g. BROWSERKIT_FIREFOX_EXECUTABLE
  BROWSERKIT_DEBUG=inspector     always launch headed
`)
}

// commonFlags are shared by launch and connect.
type commonFlags struct {
	configPath string
	debug      bool
	verbose    bool
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (default ~/.browserkit/config.json)")
	fs.BoolVar(&c.debug, "debug", false, "launch headed regardless of options")
	fs.BoolVarP(&c.verbose, "verbose", "v", false, "log to stderr instead of the log file")
}

func setup(c *commonFlags, component string) (*env, error) {
	if err := config.Initialize(c.configPath); err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	var logger *logging.Logger
	if c.verbose {
		logger = logging.NewWriterLogger(component, os.Stderr)
	} else {
		var err error
		logger, err = logging.NewLogger(component)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	return &env{section: config.GetLauncher(), logger: logger}, nil
}

// launcherOptions wires the registry, host validator and configured
// timeouts into a launcher.
func (e *env) launcherOptions(debug bool) []launcher.Option {
	_, closeTimeout := e.section.Timeouts()
	static := registry.NewStatic(e.section.Executables)
	return []launcher.Option{
		launcher.WithLogger(e.logger),
		launcher.WithRegistry(registry.NewPlaywright(static, e.logger)),
		launcher.WithHostValidator(hostdeps.New(e.logger)),
		launcher.WithCloseTimeout(closeTimeout),
		launcher.WithDebugMode(debug || e.section.DebugMode || os.Getenv(launcher.DebugEnv) == "inspector"),
	}
}

func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
