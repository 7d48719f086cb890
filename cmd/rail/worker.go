package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rail/pkg/console"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/manager"
)

var (
	providerTimeoutMs uint64
	providerMode      string
	workerVerbose     bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Talk to the web worker",
}

// withWorker runs fn against a fresh manager and prints its result as JSON.
// The worker is always stopped before returning.
func withWorker(fn func(ctx context.Context, m *manager.Manager) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var emit events.Emitter = events.Discard
		if workerVerbose {
			emit = console.NewPrinter(cmd.ErrOrStderr(), console.DefaultWidth)
		}
		a, err := newApp(emit)
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := fn(cmd.Context(), a.manager)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	}
}

func printJSON(w io.Writer, v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		var pretty any
		if json.Unmarshal(raw, &pretty) == nil {
			v = pretty
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var workerHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Start the worker and report its health",
	Args:  cobra.NoArgs,
	RunE: withWorker(func(ctx context.Context, m *manager.Manager) (any, error) {
		if _, err := m.EnsureWorker(ctx); err != nil {
			return nil, err
		}
		return m.WorkerHealth(ctx)
	}),
}

var workerRunCmd = &cobra.Command{
	Use:   "run <provider> <prompt>",
	Short: "Run a prompt against a web provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorker(func(ctx context.Context, m *manager.Manager) (any, error) {
			res, err := m.ProviderRun(ctx, args[0], args[1], providerTimeoutMs, providerMode)
			if err != nil {
				return nil, err
			}
			if !res.OK {
				printJSON(cmd.OutOrStdout(), res)
				msg := "provider run failed"
				if res.Error != nil {
					msg = *res.Error
				}
				return nil, errors.New(msg)
			}
			return res, nil
		})(cmd, args)
	},
}

func providerCmd(use, short string, fn func(ctx context.Context, m *manager.Manager, provider string) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <provider>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorker(func(ctx context.Context, m *manager.Manager) (any, error) {
				return fn(ctx, m, args[0])
			})(cmd, args)
		},
	}
}

var workerOpenCmd = providerCmd("open", "Open an interactive provider session (for logging in)",
	func(ctx context.Context, m *manager.Manager, p string) (any, error) {
		out, err := m.OpenSession(ctx, p)
		if err != nil {
			return nil, err
		}
		// The session window belongs to the worker process.
		fmt.Fprintln(os.Stderr, "session open; press Ctrl-C to close")
		wait, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-wait.Done()
		return out, nil
	})

var workerResetCmd = providerCmd("reset", "Discard a provider's session state",
	func(ctx context.Context, m *manager.Manager, p string) (any, error) {
		return map[string]bool{"ok": true}, m.ResetSession(ctx, p)
	})

var workerCancelCmd = providerCmd("cancel", "Cancel a provider's run in progress",
	func(ctx context.Context, m *manager.Manager, p string) (any, error) {
		return map[string]bool{"ok": true}, m.Cancel(ctx, p)
	})

var workerBridgeStatusCmd = &cobra.Command{
	Use:   "bridge-status",
	Short: "Show the browser bridge state",
	Args:  cobra.NoArgs,
	RunE: withWorker(func(ctx context.Context, m *manager.Manager) (any, error) {
		return m.BridgeStatus(ctx)
	}),
}

var workerRotateTokenCmd = &cobra.Command{
	Use:   "rotate-token",
	Short: "Issue a new browser bridge token",
	Args:  cobra.NoArgs,
	RunE: withWorker(func(ctx context.Context, m *manager.Manager) (any, error) {
		return m.BridgeRotateToken(ctx)
	}),
}

func init() {
	workerCmd.PersistentFlags().BoolVarP(&workerVerbose, "verbose", "v", false, "Print worker events to stderr")
	workerRunCmd.Flags().Uint64Var(&providerTimeoutMs, "timeout-ms", manager.DefaultProviderTimeoutMs, "Run timeout in milliseconds")
	workerRunCmd.Flags().StringVar(&providerMode, "mode", manager.DefaultProviderMode, "Run mode")

	workerCmd.AddCommand(workerHealthCmd)
	workerCmd.AddCommand(workerRunCmd)
	workerCmd.AddCommand(workerOpenCmd)
	workerCmd.AddCommand(workerResetCmd)
	workerCmd.AddCommand(workerCancelCmd)
	workerCmd.AddCommand(workerBridgeStatusCmd)
	workerCmd.AddCommand(workerRotateTokenCmd)
}
