package main

import (
	"context"
	"fmt"

	"worktracker/internal/app"
	"worktracker/internal/singleton"
	"worktracker/internal/tui"
	"worktracker/pkg/logger"

	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the timer in the terminal alongside the web dashboard",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	configMgr, dataDir, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer logger.Close()

	guard, err := singleton.EnsureSingleInstance(AppName, dataDir)
	if err != nil {
		return err
	}
	defer guard.Close()

	a, err := app.New(configMgr, AppVersion)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Start(context.Background()); err != nil {
		return err
	}
	a.Serve()

	if err := tui.Run(a.Worker(), a.Store()); err != nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}
