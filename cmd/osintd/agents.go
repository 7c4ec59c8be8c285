package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stake-plus/osintops/src/agents"
	agentcore "github.com/stake-plus/osintops/src/agents/core"
	"github.com/stake-plus/osintops/src/config"
)

func newAgentsCmd(getLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured adapters and whether they can run here",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAgentsConfig()
			if err != nil {
				return err
			}
			registry, err := agents.StartAll(cmd.Context(), cfg, getLogger())
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				registry.Stop(ctx)
			}()
			return printAgents(cmd.OutOrStdout(), registry.Describe())
		},
	}
}

func printAgents(w io.Writer, descriptors []agentcore.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tTARGETS\tTRUST\tTIMEOUT\tSTATUS")
	for _, d := range descriptors {
		targets := make([]string, 0, len(d.TargetTypes))
		for _, tt := range d.TargetTypes {
			targets = append(targets, string(tt))
		}
		status := "ready"
		if !d.Available {
			status = "unavailable"
			if d.Reason != "" {
				status += " (" + d.Reason + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			d.Name, d.Category, strings.Join(targets, ","), d.Trust, d.MaxDuration, status)
	}
	return tw.Flush()
}
