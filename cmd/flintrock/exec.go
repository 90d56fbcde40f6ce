package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var runCommandCmd = &cobra.Command{
	Use:   "run-command <name> -- <command...>",
	Short: "Run a shell command on cluster nodes",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRunCommand,
}

var copyFileCmd = &cobra.Command{
	Use:   "copy-file <name> <local> <remote>",
	Short: "Copy a local file to cluster nodes",
	Args:  cobra.ExactArgs(3),
	RunE:  runCopyFile,
}

func init() {
	runCommandCmd.Flags().String("target", "all", "Nodes to run on: master, slaves, or all")
	copyFileCmd.Flags().String("target", "all", "Nodes to copy to: master, slaves, or all")
	copyFileCmd.Flags().Uint32("mode", 0644, "Remote file mode")
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	clusterName := args[0]
	command := strings.Join(args[1:], " ")
	target, _ := cmd.Flags().GetString("target")

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	results, err := o.RunCommand(cmd.Context(), clusterName, target, command)
	if err != nil {
		return err
	}

	for id, result := range results {
		fmt.Printf("=== %s (exit %d) ===\n", id, result.ExitCode)
		if result.Stdout != "" {
			fmt.Print(result.Stdout)
		}
		if result.Stderr != "" {
			fmt.Fprint(os.Stderr, result.Stderr)
		}
	}
	return nil
}

func runCopyFile(cmd *cobra.Command, args []string) error {
	clusterName := args[0]
	localPath := args[1]
	remotePath := args[2]
	target, _ := cmd.Flags().GetString("target")
	mode, _ := cmd.Flags().GetUint32("mode")

	content, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read local file %s: %w", localPath, err)
	}

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	if err := o.CopyFile(cmd.Context(), clusterName, target, content, remotePath, mode); err != nil {
		return err
	}

	fmt.Printf("copied %s to %s on cluster %s\n", localPath, remotePath, clusterName)
	return nil
}
