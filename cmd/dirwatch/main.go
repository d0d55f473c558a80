// Package main provides the entry point for the dirwatch CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aman-CERP/dirwatch/cmd/dirwatch/cmd"
	dwerrors "github.com/Aman-CERP/dirwatch/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	if err != nil {
		if dwerrors.GetCode(err) == "" {
			// argument errors reported by cobra itself
			err = dwerrors.ValidationError(err.Error(), nil).
				WithSuggestion("Run 'dirwatch --help' for usage")
		}
		fmt.Fprint(os.Stderr, dwerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
