package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login <name>",
	Short: "SSH into a cluster's master node",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	clusterName := args[0]

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	address, err := o.MasterAddress(cmd.Context(), clusterName)
	if err != nil {
		return err
	}

	sshUser := cfg.SSHUser
	if sshUser == "" {
		sshUser = "ec2-user"
	}

	sshPath, err := exec.LookPath("ssh")
	if err != nil {
		return fmt.Errorf("ssh binary not found on PATH: %w", err)
	}

	argv := []string{"ssh"}
	if cfg.IdentityFile != "" {
		argv = append(argv, "-i", cfg.IdentityFile)
	}
	argv = append(argv, fmt.Sprintf("%s@%s", sshUser, address))

	// Replace this process with ssh entirely rather than shelling out
	// and waiting, so terminal control (job control, window resize,
	// Ctrl-C) behaves exactly as a direct ssh invocation would.
	return syscall.Exec(sshPath, argv, os.Environ())
}
