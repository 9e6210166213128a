// Command dcompass runs the programmable recursive DNS front-end: it
// loads a config document, compiles its routing script, and serves UDP
// queries through the ambient middleware chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/compassd/dcompass/config"
	"github.com/compassd/dcompass/internal/bootstrap"
)

// BuildVersion is stamped at release time via -ldflags.
var BuildVersion = "0.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var validateOnly bool

	root := &cobra.Command{
		Use:   "dcompass",
		Short: "A programmable recursive DNS front-end",
	}
	root.Flags().StringVarP(&configPath, "config", "c", "dcompass.yaml", "location of the config file, if not found it will be generated")
	root.Flags().BoolVarP(&validateOnly, "validate", "v", false, "validate the config and script, then exit")

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, BuildVersion)
		if err != nil {
			exitCode = 1
			return fmt.Errorf("config error: %w", err)
		}

		app, err := bootstrap.Build(cfg)
		if err != nil {
			exitCode = 1
			return fmt.Errorf("config error: %w", err)
		}

		if validateOnly {
			app.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "config and script are valid")
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		app.Server.Run(ctx)
		defer app.Close()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		cancel()
		if err := app.Server.Stop(); err != nil {
			exitCode = 2
			return fmt.Errorf("runtime error: %w", err)
		}

		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = 2
		}
	}

	return exitCode
}
