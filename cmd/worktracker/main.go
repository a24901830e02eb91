package main

import (
	"fmt"
	"os"
)

const (
	AppName    = "WorkTracker"
	AppVersion = "2.0.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
