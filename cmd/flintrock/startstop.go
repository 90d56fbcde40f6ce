package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nchammas/flintrock/pkg/log"
)

var startCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "Start a stopped cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "Stop a running cluster, retaining its disks and security group",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func runStart(cmd *cobra.Command, args []string) error {
	clusterName := args[0]

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	log.WithComponent("cmd/flintrock").Info().Str("cluster", clusterName).Msg("starting cluster")
	c, err := o.Start(cmd.Context(), clusterName, buildServices(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("cluster %s started: %d node(s)\n", c.Name, len(c.Nodes()))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	clusterName := args[0]

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	log.WithComponent("cmd/flintrock").Info().Str("cluster", clusterName).Msg("stopping cluster")
	c, err := o.Stop(cmd.Context(), clusterName, buildServices(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("cluster %s stopped\n", c.Name)
	return nil
}
