package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/entrhq/browserkit/pkg/browsers"
	"github.com/entrhq/browserkit/pkg/launcher"
)

func runConnect(args []string) error {
	var common commonFlags
	var headers map[string]string
	var timeout time.Duration
	var hold bool
	fs := pflag.NewFlagSet("connect", pflag.ContinueOnError)
	common.register(fs)
	fs.StringToStringVar(&headers, "header", nil, "extra connect header, Name=Value")
	fs.DurationVar(&timeout, "timeout", 30*time.Second, "connect timeout")
	fs.BoolVar(&hold, "hold", false, "stay attached until the browser goes away")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("connect takes exactly one endpoint, e.g. http://localhost:9222")
	}

	e, err := setup(&common, "connect")
	if err != nil {
		return err
	}
	defer e.logger.Close()

	l, err := browsers.NewLauncher("chromium", e.launcherOptions(common.debug)...)
	if err != nil {
		return err
	}

	ctx := context.Background()
	session, err := l.ConnectOverRemoteEndpoint(ctx, fs.Arg(0), launcher.RemoteOptions{Headers: headers}, timeout)
	if err != nil {
		return err
	}
	printSession(session)

	if hold {
		<-session.Done()
		return nil
	}
	return session.Close(ctx)
}
