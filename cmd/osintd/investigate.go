package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/consolidate"
	"github.com/stake-plus/osintops/src/investigations"
	"github.com/stake-plus/osintops/src/shared/osint"
)

type investigateFlags struct {
	scope    []string
	deadline time.Duration
	asJSON   bool
	memory   bool
}

func newInvestigateCmd(getLogger func() *zap.Logger) *cobra.Command {
	flags := &investigateFlags{}
	cmd := &cobra.Command{
		Use:     "investigate <type> <value>",
		Short:   "Run one investigation and print its report",
		Example: "  osintd investigate domain example.com --scope subdomain-enum,search",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return runInvestigation(cmd, getLogger(), target, flags, false)
		},
	}
	addInvestigateFlags(cmd, flags)
	cmd.Flags().BoolVar(&flags.memory, "memory", false, "ignore MYSQL_DSN and REDIS_URL and keep everything in memory")
	return cmd
}

func newDemoCmd(getLogger func() *zap.Logger) *cobra.Command {
	flags := &investigateFlags{memory: true}
	cmd := &cobra.Command{
		Use:   "demo [type] [value]",
		Short: "Run an investigation against scripted offline adapters",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, value := "domain", "example.com"
			if len(args) > 0 {
				kind = args[0]
			}
			if len(args) > 1 {
				value = args[1]
			}
			target, err := parseTarget(kind, value)
			if err != nil {
				return err
			}
			return runInvestigation(cmd, getLogger(), target, flags, true)
		},
	}
	addInvestigateFlags(cmd, flags)
	return cmd
}

func addInvestigateFlags(cmd *cobra.Command, flags *investigateFlags) {
	cmd.Flags().StringSliceVar(&flags.scope, "scope", nil, "categories to run (default: all that accept the target)")
	cmd.Flags().DurationVar(&flags.deadline, "deadline", 0, "investigation deadline (default from settings)")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print the report as JSON")
}

func parseTarget(kind, value string) (osint.Target, error) {
	targetType, err := osint.ParseTargetType(kind)
	if err != nil {
		return osint.Target{}, err
	}
	target := osint.Target{Type: targetType, Value: strings.TrimSpace(value)}
	if err := target.Validate(); err != nil {
		return osint.Target{}, err
	}
	return target, nil
}

func runInvestigation(cmd *cobra.Command, logger *zap.Logger, target osint.Target, flags *investigateFlags, demo bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runtimeOptions{memory: flags.memory}
	if demo {
		opts.demo = &target
	}
	rt, err := buildRuntime(ctx, logger, opts)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		rt.close(shutdownCtx)
	}()

	ack, err := rt.svc.Submit(ctx, investigations.Request{
		Target:      target,
		Scope:       flags.scope,
		Deadline:    flags.deadline,
		RequestedBy: "cli",
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "investigation %s started with %s (deadline %s)\n",
		ack.InvestigationID, strings.Join(ack.Adapters, ", "), ack.Deadline.Format(time.RFC3339))

	if _, err := rt.svc.Wait(ctx, ack.InvestigationID); err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "interrupted, cancelling")
		waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.svc.Cancel(waitCtx, ack.InvestigationID); err != nil && !errors.Is(err, investigations.ErrAlreadyTerminal) {
			return err
		}
		if _, err := rt.svc.Wait(waitCtx, ack.InvestigationID); err != nil {
			return err
		}
		ctx = waitCtx
	}

	report, err := rt.svc.Report(ctx, ack.InvestigationID)
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), report, flags.asJSON)
}

func printReport(w io.Writer, report osint.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err := fmt.Fprint(w, consolidate.RenderMarkdown(report, 0))
	return err
}
