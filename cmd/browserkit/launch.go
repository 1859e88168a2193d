package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/entrhq/browserkit/pkg/browsers"
	"github.com/entrhq/browserkit/pkg/launcher"
)

func runLaunch(args []string) error {
	var common commonFlags
	var flags launchFlags
	fs := pflag.NewFlagSet("launch", pflag.ContinueOnError)
	common.register(fs)
	flags.register(fs)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(1))
	}

	e, err := setup(&common, "launch")
	if err != nil {
		return err
	}
	defer e.logger.Close()

	file, err := resolveLaunch(fs, &flags, fs.Arg(0), e.section)
	if err != nil {
		return err
	}
	l, err := browsers.NewLauncher(file.Browser, e.launcherOptions(common.debug)...)
	if err != nil {
		return err
	}

	if flags.metricsAddr != "" {
		stop := serveMetrics(flags.metricsAddr, e)
		defer stop()
	}

	ctx := context.Background()
	var session launcher.Session
	if file.UserDataDir != "" {
		dc, err := l.LaunchPersistentContext(ctx, file.UserDataDir, file.Options)
		if err != nil {
			return err
		}
		session = dc.Session()
	} else {
		session, err = l.Launch(ctx, file.Options)
		if err != nil {
			return err
		}
	}

	printSession(session)
	e.logger.Infof("session %s running", session.ID())

	// Signals are handled by the process supervisor, which closes the
	// browser and re-raises.
	<-session.Done()
	if p := session.Options().Process; p != nil {
		<-p.Done()
		fmt.Fprintf(os.Stderr, "browser exited: %s\n", p.ExitStatus())
	}
	return nil
}

func printSession(s launcher.Session) {
	o := s.Options()
	fmt.Printf("session:   %s\n", s.ID())
	fmt.Printf("browser:   %s\n", o.Name)
	fmt.Printf("headless:  %t\n", o.Headless)
	if o.Process != nil {
		fmt.Printf("pid:       %d\n", o.Process.PID())
	}
	if o.WSEndpoint != "" {
		fmt.Printf("endpoint:  %s\n", o.WSEndpoint)
	}
	if o.Persistent {
		fmt.Printf("profile:   %s\n", o.UserDataDir)
	}
}

func serveMetrics(addr string, e *env) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Warnf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
