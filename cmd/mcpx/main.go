// Package main is the entry point for the mcpx CLI.
package main

import (
	"os"

	"github.com/stacklok/mcpx/cmd/mcpx/app"
	"github.com/stacklok/mcpx/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
