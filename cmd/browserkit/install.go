package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/entrhq/browserkit/pkg/registry"
)

func runInstall(args []string) error {
	fs := pflag.NewFlagSet("install", pflag.ContinueOnError)
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	families := fs.Args()
	if len(families) == 0 {
		families = registry.Families
	}
	fmt.Printf("installing %v\n", families)
	return registry.Install(os.Stdout, families...)
}
