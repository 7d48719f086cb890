package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/rail/pkg/approval"
	"github.com/ormasoftchile/rail/pkg/console"
	"github.com/ormasoftchile/rail/pkg/events"
)

var (
	runCwd       string
	runJSON      bool
	runQuiet     bool
	runNoConsole bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine, stream its events and open an interactive console",
	Long: `Start the agent engine in --cwd, print every event it reports and answer
approval requests according to the configured policy. Requests the policy
leaves to a human can be answered with 'approve <id>' at the console.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cwd := runCwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		cwd = wd
	}

	printer := console.NewPrinter(cmd.OutOrStdout(), console.DefaultWidth)
	printer.Quiet = runQuiet
	var sink events.Emitter = printer
	if runJSON {
		sink = events.NewJSONWriter(cmd.OutOrStdout())
	}
	bus := events.NewBus()

	a, err := newApp(events.Multi(bus, sink))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := approval.NewPolicy(a.cfg.Approvals)
	if err != nil {
		return err
	}
	sub := bus.Subscribe(0)
	defer sub.Close()
	responder := &approval.Responder{
		Policy:  policy,
		Respond: a.manager.RespondApproval,
		Cwd:     cwd,
		OnPrompt: func(req events.ApprovalRequest) {
			if !runJSON {
				printer.Printf("approval #%d waiting: approve %d [accept|decline]\n", req.RequestID, req.RequestID)
			}
		},
	}
	go responder.Run(ctx, sub.Events)

	if err := a.manager.StartEngine(ctx, cwd); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if runJSON || runNoConsole {
		<-ctx.Done()
		return nil
	}
	return console.New(a.manager, printer).Run(ctx)
}

func init() {
	runCmd.Flags().StringVar(&runCwd, "cwd", "", "Working directory for the engine (default: current directory)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Write events as JSON lines instead of the console")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "Hide stderr output of the children")
	runCmd.Flags().BoolVar(&runNoConsole, "no-console", false, "Only stream events; stop on interrupt")
}
