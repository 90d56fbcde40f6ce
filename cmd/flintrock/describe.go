package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nchammas/flintrock/pkg/cluster"
)

var describeCmd = &cobra.Command{
	Use:   "describe [name]",
	Short: "Show a cluster's current state, as reconstructed from provider metadata",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().Bool("master-hostname-only", false, "Print only the master's public address")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("describing every cluster in a region requires a provider-wide list operation not implemented by this adapter; pass a cluster name")
	}
	clusterName := args[0]

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	c, err := o.Describe(cmd.Context(), clusterName)
	if err != nil {
		if cluster.IsNotFound(err) {
			fmt.Printf("cluster %s not found\n", clusterName)
			return nil
		}
		return err
	}

	masterHostnameOnly, _ := cmd.Flags().GetBool("master-hostname-only")
	if masterHostnameOnly {
		if c.Master != nil {
			fmt.Println(c.Master.PublicAddress)
		}
		return nil
	}

	fmt.Printf("name: %s\n", c.Name)
	fmt.Printf("state: %s\n", c.State)
	fmt.Printf("node-count: %d\n", len(c.Nodes()))
	if c.Master != nil {
		fmt.Printf("master: %s (%s)\n", c.Master.PublicAddress, c.Master.InstanceID)
	}
	for _, s := range c.Slaves {
		fmt.Printf("slave: %s (%s)\n", s.PublicAddress, s.InstanceID)
	}
	for _, svc := range c.Services {
		fmt.Printf("service: %s\n", svc.Name)
	}
	return nil
}
