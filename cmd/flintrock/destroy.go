package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nchammas/flintrock/pkg/log"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <name>",
	Short: "Terminate a cluster and its security group",
	Args:  cobra.ExactArgs(1),
	RunE:  runDestroy,
}

func init() {
	destroyCmd.Flags().Bool("assume-yes", false, "Do not prompt for confirmation")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	clusterName := args[0]
	assumeYes, _ := cmd.Flags().GetBool("assume-yes")

	if !assumeYes && !confirmf("Destroy cluster %s?", clusterName) {
		fmt.Println("aborted")
		return nil
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	log.WithComponent("cmd/flintrock").Info().Str("cluster", clusterName).Msg("destroying cluster")
	if err := o.Destroy(cmd.Context(), clusterName); err != nil {
		return err
	}

	fmt.Printf("cluster %s destroyed\n", clusterName)
	return nil
}
