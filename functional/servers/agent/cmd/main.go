// Package main provides the mock agent binary. "run" acts as the coding agent
// and "evaluate" as the correctness checker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpchecker/pairbench/functional/servers/agent"
	"github.com/mcpchecker/pairbench/functional/servers/evaluator"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:           "mock-agent",
		SilenceErrors: true,
	}
	root.AddCommand(agent.NewRunCmd(), evaluator.NewEvaluateCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *agent.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
