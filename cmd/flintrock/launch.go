package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nchammas/flintrock/pkg/log"
	"github.com/nchammas/flintrock/pkg/orchestrator"
)

var launchCmd = &cobra.Command{
	Use:   "launch <name>",
	Short: "Launch a new cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runLaunch,
}

func init() {
	launchCmd.Flags().Int("num-slaves", 1, "Number of slave nodes")
	launchCmd.Flags().String("instance-type", "m5.large", "EC2 instance type")
	launchCmd.Flags().String("ami", "", "AMI id")
	launchCmd.Flags().String("key-name", "", "EC2 key pair name")
	launchCmd.Flags().String("availability-zone", "", "Availability zone")
	launchCmd.Flags().String("subnet-id", "", "Subnet id")
	launchCmd.Flags().String("spot-price", "", "Maximum spot bid per instance; omit for on-demand")
	launchCmd.Flags().String("storage-path", "/media/ephemeral0", "Ephemeral device mount root")
	launchCmd.Flags().Bool("assume-yes", false, "Roll back a failed launch without prompting")
	launchCmd.Flags().String("spark-version", "", "Released Spark version to install, e.g. 3.2.1 (mutually exclusive with --spark-git-commit)")
	launchCmd.Flags().String("spark-tarball-url", "", "Direct URL to a Spark release tarball, overriding --spark-version's mirror lookup")
	launchCmd.Flags().String("spark-git-repo", "apache/spark", "GitHub repo to build Spark from when --spark-git-commit is set")
	launchCmd.Flags().String("spark-git-commit", "", `Git ref to build Spark from, or "latest" for the default branch's HEAD (mutually exclusive with --spark-version)`)
	launchCmd.Flags().String("java-version", "", `Java runtime to install before Spark, "8" or "11" (default "8")`)
	launchCmd.Flags().Bool("install-hdfs", false, "Also install HDFS alongside Spark")
	launchCmd.Flags().String("hdfs-tarball-url", "", "Direct URL to a Hadoop release tarball")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	clusterName := args[0]
	logger := log.WithComponent("cmd/flintrock")

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	applyLaunchFlags(cmd, &cfg)
	if cfg.SSHUser == "" {
		cfg.SSHUser = "ec2-user"
	}

	o, err := buildOrchestrator(cmd.Context(), cmd, cfg)
	if err != nil {
		return err
	}

	assumeYes, _ := cmd.Flags().GetBool("assume-yes")
	spec := orchestrator.LaunchSpec{
		ClusterName:      clusterName,
		NumSlaves:        cfg.NumSlaves,
		InstanceType:     cfg.InstanceType,
		AMI:              cfg.AMI,
		KeyName:          cfg.KeyName,
		IdentityFilePath: cfg.IdentityFile,
		SSHUser:          cfg.SSHUser,
		AvailabilityZone: cfg.AvailabilityZone,
		SubnetID:         cfg.SubnetID,
		SpotPrice:        cfg.SpotPrice,
		StoragePath:      cfg.StoragePath,
		Services:         buildServices(cfg),
		AssumeYes:        assumeYes,
		Confirm:          confirmRollback,
	}

	logger.Info().Str("cluster", clusterName).Int("slaves", cfg.NumSlaves).Msg("launching cluster")
	c, err := o.Launch(cmd.Context(), spec)
	if err != nil {
		return err
	}

	fmt.Printf("Cluster %s launched: %d node(s), master at %s\n", c.Name, len(c.Nodes()), c.Master.PublicAddress)
	return nil
}

func applyLaunchFlags(cmd *cobra.Command, cfg *LaunchConfig) {
	if v, _ := cmd.Flags().GetInt("num-slaves"); cmd.Flags().Changed("num-slaves") || cfg.NumSlaves == 0 {
		cfg.NumSlaves = v
	}
	if v, _ := cmd.Flags().GetString("instance-type"); cmd.Flags().Changed("instance-type") || cfg.InstanceType == "" {
		cfg.InstanceType = v
	}
	if v, _ := cmd.Flags().GetString("ami"); cmd.Flags().Changed("ami") {
		cfg.AMI = v
	}
	if v, _ := cmd.Flags().GetString("key-name"); cmd.Flags().Changed("key-name") {
		cfg.KeyName = v
	}
	if v, _ := cmd.Flags().GetString("availability-zone"); cmd.Flags().Changed("availability-zone") {
		cfg.AvailabilityZone = v
	}
	if v, _ := cmd.Flags().GetString("subnet-id"); cmd.Flags().Changed("subnet-id") {
		cfg.SubnetID = v
	}
	if v, _ := cmd.Flags().GetString("spot-price"); cmd.Flags().Changed("spot-price") {
		cfg.SpotPrice = v
	}
	if v, _ := cmd.Flags().GetString("storage-path"); cmd.Flags().Changed("storage-path") || cfg.StoragePath == "" {
		cfg.StoragePath = v
	}

	if cfg.Spark == nil {
		cfg.Spark = &SparkConfig{}
	}
	if v, _ := cmd.Flags().GetString("spark-version"); cmd.Flags().Changed("spark-version") {
		cfg.Spark.Version = v
	}
	if v, _ := cmd.Flags().GetString("spark-tarball-url"); cmd.Flags().Changed("spark-tarball-url") {
		cfg.Spark.TarballURL = v
	}
	if v, _ := cmd.Flags().GetString("spark-git-repo"); cmd.Flags().Changed("spark-git-repo") || cfg.Spark.GitRepo == "" {
		cfg.Spark.GitRepo = v
	}
	if v, _ := cmd.Flags().GetString("spark-git-commit"); cmd.Flags().Changed("spark-git-commit") {
		cfg.Spark.GitRef = v
	}
	if v, _ := cmd.Flags().GetString("java-version"); cmd.Flags().Changed("java-version") {
		cfg.Spark.JavaVersion = v
	}

	if v, _ := cmd.Flags().GetBool("install-hdfs"); v && cfg.HDFS == nil {
		cfg.HDFS = &HDFSConfig{}
	}
	if v, _ := cmd.Flags().GetString("hdfs-tarball-url"); cmd.Flags().Changed("hdfs-tarball-url") {
		if cfg.HDFS == nil {
			cfg.HDFS = &HDFSConfig{}
		}
		cfg.HDFS.TarballURL = v
	}
}

// confirmRollback asks the operator once whether to roll back a failed
// launch, per spec §4.6: without --assume-yes, the instances are left
// in place if the operator declines.
func confirmRollback() bool {
	return confirmf("Launch failed. Roll back (terminate partially-launched instances)?")
}
