package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/log"
	"github.com/nchammas/flintrock/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "flintrock",
	Short: "Launch and manage ephemeral Spark clusters on EC2",
	Long: `Flintrock launches, resizes, inspects, and tears down ephemeral
Apache Spark clusters (optionally with HDFS) on EC2.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: persistentPreRun,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("flintrock version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("region", "", "AWS region (defaults to the SDK's standard environment resolution)")
	rootCmd.PersistentFlags().String("vpc-id", "", "VPC to launch instances in (defaults to the account's default VPC)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Address to serve Prometheus metrics on, e.g. 127.0.0.1:9090 (disabled if empty)")
	rootCmd.PersistentFlags().String("config", "", "YAML file describing the cluster (overridden by any flag set explicitly)")
	rootCmd.PersistentFlags().String("identity-file", "", "Path to the SSH private key used to reach cluster nodes")
	rootCmd.PersistentFlags().String("ssh-user", "", "User to SSH into nodes as")

	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(addSlavesCmd)
	rootCmd.AddCommand(removeSlavesCmd)
	rootCmd.AddCommand(runCommandCmd)
	rootCmd.AddCommand(copyFileCmd)
}

func persistentPreRun(cmd *cobra.Command, args []string) error {
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.WithComponent("cmd/flintrock").Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}
	return nil
}

// exitCodeFor maps an engine error's Kind to the process exit codes
// spec §6 requires: 0 success, 1 unexpected failure, 2 bad usage.
// config-error is the only kind that corresponds to bad usage (an
// invalid cluster name, an unresolvable AMI); everything else tagged
// with a Kind is an operational failure, and anything untagged
// (a cobra argument-parsing error, for instance) is usage error too.
func exitCodeFor(err error) int {
	kind, ok := errs.KindOf(err)
	if !ok {
		return 2
	}
	if kind == errs.KindConfig {
		return 2
	}
	return 1
}
