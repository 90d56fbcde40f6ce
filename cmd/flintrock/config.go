package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/orchestrator"
	"github.com/nchammas/flintrock/pkg/provider/ec2"
	"github.com/nchammas/flintrock/pkg/service"
	"github.com/nchammas/flintrock/pkg/service/hdfs"
	"github.com/nchammas/flintrock/pkg/service/spark"
	"github.com/nchammas/flintrock/pkg/sshexec"
)

// LaunchConfig is the YAML shape --config decodes into. Flags passed on
// the command line override whatever the config file sets for the same
// field. Populating an orchestrator.LaunchSpec from flags or a config
// file is explicitly out of scope for the orchestration engine itself
// (spec §1); this struct is cmd/flintrock's own concern.
type LaunchConfig struct {
	NumSlaves        int    `yaml:"num-slaves"`
	InstanceType     string `yaml:"instance-type"`
	AMI              string `yaml:"ami"`
	KeyName          string `yaml:"key-name"`
	IdentityFile     string `yaml:"identity-file"`
	SSHUser          string `yaml:"ssh-user"`
	AvailabilityZone string `yaml:"availability-zone"`
	SubnetID         string `yaml:"subnet-id"`
	SpotPrice        string `yaml:"spot-price"`
	StoragePath      string `yaml:"storage-path"`

	Spark *SparkConfig `yaml:"spark"`
	HDFS  *HDFSConfig  `yaml:"hdfs"`
}

type SparkConfig struct {
	Version     string `yaml:"version"` // tarball release version, e.g. "3.2.1"
	TarballURL  string `yaml:"tarball-url"`
	GitRepo     string `yaml:"git-repo"`
	GitRef      string `yaml:"git-ref"`
	JavaVersion string `yaml:"java-version"` // "8" or "11"
}

type HDFSConfig struct {
	TarballURL  string `yaml:"tarball-url"`
	Replication int    `yaml:"replication"`
}

// resolveConfig loads --config (if set) and overlays the shared
// --identity-file/--ssh-user persistent flags, which every subcommand
// that opens SSH sessions needs regardless of whether it also accepts
// launch-specific flags.
func resolveConfig(cmd *cobra.Command) (LaunchConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadLaunchConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if v, _ := cmd.Flags().GetString("identity-file"); v != "" {
		cfg.IdentityFile = v
	}
	if v, _ := cmd.Flags().GetString("ssh-user"); v != "" {
		cfg.SSHUser = v
	}
	return cfg, nil
}

func loadLaunchConfig(path string) (LaunchConfig, error) {
	var cfg LaunchConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errs.Wrap(errs.KindConfig, err, fmt.Sprintf("failed to read config file %s", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errs.Wrap(errs.KindConfig, err, fmt.Sprintf("failed to parse config file %s", path))
	}
	return cfg, nil
}

// sparkReleaseMirrorFmt is the default Apache mirror tarball pattern, used
// when a config supplies a bare version number instead of a direct URL.
const sparkReleaseMirrorFmt = "https://archive.apache.org/dist/spark/spark-%[1]s/spark-%[1]s-bin-hadoop3.tgz"

const defaultHadoopTarballURL = "https://archive.apache.org/dist/hadoop/common/hadoop-2.9.2/hadoop-2.9.2.tar.gz"

// buildServices resolves the services a launch/start/add-slaves
// invocation installs: Spark first, then HDFS when the config requests
// it. The orchestrator sorts them into install order itself.
// Spark is effectively mandatory (Flintrock's purpose is running Spark
// clusters); HDFS is included only when the config requests it, since
// installing it unconditionally would contradict spec §4.3's
// independence-of-services design.
func buildServices(cfg LaunchConfig) []service.Service {
	var services []service.Service

	sparkCfg := cfg.Spark
	if sparkCfg == nil {
		sparkCfg = &SparkConfig{Version: "3.2.1"}
	}
	version := spark.Version{GitRepo: sparkCfg.GitRepo, GitRef: sparkCfg.GitRef}
	if sparkCfg.TarballURL != "" {
		version.TarballURL = sparkCfg.TarballURL
	} else if sparkCfg.GitRef == "" {
		v := sparkCfg.Version
		if v == "" {
			v = "3.2.1"
		}
		version.TarballURL = fmt.Sprintf(sparkReleaseMirrorFmt, v)
	}
	sparkSvc := spark.New(version)
	if sparkCfg.JavaVersion != "" {
		sparkSvc.JavaVersion = sparkCfg.JavaVersion
	}
	services = append(services, sparkSvc)

	if cfg.HDFS != nil {
		tarballURL := cfg.HDFS.TarballURL
		if tarballURL == "" {
			tarballURL = defaultHadoopTarballURL
		}
		hdfsSvc := hdfs.New(tarballURL)
		if cfg.HDFS.Replication > 0 {
			hdfsSvc.Replication = cfg.HDFS.Replication
		} else {
			hdfsSvc.Replication = minInt(3, cfg.NumSlaves)
		}
		services = append(services, hdfsSvc)
	}

	return services
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// buildOrchestrator wires the real EC2 provider and SSH executor from
// the resolved flags/config, the concrete composition root every
// subcommand shares.
func buildOrchestrator(ctx context.Context, cmd *cobra.Command, cfg LaunchConfig) (*orchestrator.Orchestrator, error) {
	region, _ := cmd.Flags().GetString("region")
	vpcID, _ := cmd.Flags().GetString("vpc-id")

	p, err := ec2.NewFromDefaultConfig(ctx, region, vpcID)
	if err != nil {
		return nil, errs.Wrap(errs.KindProvider, err, "failed to initialize EC2 provider")
	}

	if cfg.IdentityFile == "" {
		return orchestrator.New(p, nil, nil), nil
	}

	keyPEM, err := os.ReadFile(cfg.IdentityFile)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, fmt.Sprintf("failed to read identity file %s", cfg.IdentityFile))
	}

	sshUser := cfg.SSHUser
	if sshUser == "" {
		sshUser = "ec2-user"
	}
	executor, err := sshexec.New(sshexec.DefaultConfig(sshUser, cfg.IdentityFile), keyPEM)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "failed to initialize SSH executor")
	}

	return orchestrator.New(p, executor, executor), nil
}
