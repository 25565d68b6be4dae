// Copyright (c) 2024-2026 Carsen Klock under MIT License
// ibtop is a real-time terminal dashboard for InfiniBand adapters written in Go Lang! github.com/context-labs/ibtop
package main

import (
	"fmt"
	"os"

	"github.com/context-labs/ibtop/internal/app"
	ibErrors "github.com/context-labs/ibtop/internal/errors"
)

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ibtop: %s\n", ibErrors.OneLine(err))
		os.Exit(1)
	}
}
