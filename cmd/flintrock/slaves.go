package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nchammas/flintrock/pkg/log"
)

var addSlavesCmd = &cobra.Command{
	Use:   "add-slaves <name> <n>",
	Short: "Allocate n additional slave nodes and join them to the cluster",
	Args:  cobra.ExactArgs(2),
	RunE:  runAddSlaves,
}

var removeSlavesCmd = &cobra.Command{
	Use:   "remove-slaves <name> <n>",
	Short: "Terminate n slave nodes, chosen by lowest instance id first",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemoveSlaves,
}

func runAddSlaves(cmd *cobra.Command, args []string) error {
	clusterName := args[0]
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return fmt.Errorf("n must be a positive integer, got %q", args[1])
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	log.WithComponent("cmd/flintrock").Info().Str("cluster", clusterName).Int("n", n).Msg("adding slaves")
	c, err := o.AddSlaves(cmd.Context(), clusterName, n, buildServices(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("cluster %s now has %d slave(s)\n", c.Name, len(c.Slaves))
	return nil
}

func runRemoveSlaves(cmd *cobra.Command, args []string) error {
	clusterName := args[0]
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		return fmt.Errorf("n must be a positive integer, got %q", args[1])
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	log.WithComponent("cmd/flintrock").Info().Str("cluster", clusterName).Int("n", n).Msg("removing slaves")
	c, err := o.RemoveSlaves(cmd.Context(), clusterName, n, buildServices(cfg))
	if err != nil {
		return err
	}

	fmt.Printf("cluster %s now has %d slave(s)\n", c.Name, len(c.Slaves))
	return nil
}
