// Package spark implements the Spark service.Service plugin: installing
// a Spark distribution (by release tarball or by git commit), rendering
// its cluster configuration, and starting and health-checking its
// master and worker daemons.
package spark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nchammas/flintrock/pkg/errs"
	"github.com/nchammas/flintrock/pkg/health"
	"github.com/nchammas/flintrock/pkg/log"
	"github.com/nchammas/flintrock/pkg/provider"
	"github.com/nchammas/flintrock/pkg/service"
)

const (
	masterWebUIPort = 8080
	workerWebUIPort = 8081
	masterRPCPort   = 7077
)

// Version pins the Spark distribution a cluster installs, either as a
// direct tarball download or as a git ref to build from source.
type Version struct {
	// TarballURL, if set, is downloaded and extracted directly. Takes
	// precedence over GitRef.
	TarballURL string

	// GitRepo and GitRef select a commit to build from source. GitRef
	// of "latest" is resolved to the default branch's HEAD commit via
	// the GitHub API at install time; if the API is unreachable, Install
	// fails rather than silently falling back to a stale or guessed
	// commit, since a guessed commit is worse than a clear error about
	// which Spark build actually ended up on the cluster.
	GitRepo string
	GitRef  string
}

// javaPackages maps the java-version option to the yum package that
// provides it on the Amazon Linux AMIs Flintrock targets.
var javaPackages = map[string]string{
	"8":  "java-1.8.0-openjdk",
	"11": "java-11-openjdk",
}

// Service installs and operates a Spark cluster.
type Service struct {
	Version    Version
	InstallDir string // e.g. /usr/local/spark

	// JavaVersion selects the Java runtime Install ensures is present
	// before unpacking Spark: "8" or "11". Defaults to "8", the runtime
	// every currently-supported Spark release builds against.
	JavaVersion string

	httpClient *http.Client
	githubAPI  string // overridable in tests; defaults to the real GitHub API
}

// New returns a Spark Service with sane defaults for fields the caller
// doesn't need to override.
func New(version Version) *Service {
	return &Service{
		Version:     version,
		InstallDir:  "/usr/local/spark",
		JavaVersion: "8",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		githubAPI:   "https://api.github.com",
	}
}

func (s *Service) Name() string { return "spark" }

func (s *Service) RequiredPorts() []provider.PortRule {
	return []provider.PortRule{
		{FromPort: masterWebUIPort, ToPort: masterWebUIPort, Protocol: "tcp", CIDR: "0.0.0.0/0"},
		{FromPort: workerWebUIPort, ToPort: workerWebUIPort, Protocol: "tcp", CIDR: "0.0.0.0/0"},
		{FromPort: masterRPCPort, ToPort: masterRPCPort, Protocol: "tcp", CIDR: ""}, // cluster-internal only
	}
}

func (s *Service) Install(ctx context.Context, sctx *service.Context, node service.Node) error {
	logger := log.WithComponent("service/spark").With().
		Str("cluster_name", sctx.ClusterName).
		Str("node_id", node.Node.InstanceID).
		Logger()

	if err := s.ensureJava(ctx, sctx, node); err != nil {
		return err
	}

	source, err := s.resolveSource(ctx)
	if err != nil {
		return err
	}

	var cmd string
	if source.tarballURL != "" {
		logger.Info().Str("url", source.tarballURL).Msg("installing spark from tarball")
		cmd = fmt.Sprintf(
			"mkdir -p %s && curl -sL %s | tar xz -C %s --strip-components=1",
			shQuote(s.InstallDir), shQuote(source.tarballURL), shQuote(s.InstallDir),
		)
	} else {
		logger.Info().Str("repo", s.Version.GitRepo).Str("ref", source.gitRef).Msg("building spark from source")
		cmd = fmt.Sprintf(
			"git clone %s %s && cd %s && git checkout %s && ./build/mvn -DskipTests package",
			shQuote(source.cloneURL), shQuote(s.InstallDir), shQuote(s.InstallDir), shQuote(source.gitRef),
		)
	}

	result, err := sctx.Executor.Run(ctx, node.Conn, cmd)
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to install spark")
	}
	if result.ExitCode != 0 {
		return errs.New(errs.KindRemoteCommand, fmt.Sprintf("spark install exited %d: %s", result.ExitCode, result.Stderr))
	}
	return nil
}

// ensureJava installs the configured Java runtime if a "java -version"
// probe doesn't already report it present. It never downgrades or
// removes an existing install; it only fills the gap on a bare AMI.
func (s *Service) ensureJava(ctx context.Context, sctx *service.Context, node service.Node) error {
	version := s.JavaVersion
	if version == "" {
		version = "8"
	}
	pkg, ok := javaPackages[version]
	if !ok {
		return errs.New(errs.KindConfig, fmt.Sprintf("unsupported java-version %q, must be 8 or 11", version))
	}

	probe := fmt.Sprintf(`java -version 2>&1 | grep -q '"%s' || sudo yum install -y %s`, javaVersionPrefix(version), pkg)
	result, err := sctx.Executor.Run(ctx, node.Conn, probe)
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to ensure java runtime")
	}
	if result.ExitCode != 0 {
		return errs.New(errs.KindRemoteCommand, fmt.Sprintf("java install exited %d: %s", result.ExitCode, result.Stderr))
	}
	return nil
}

// javaVersionPrefix maps the java-version option to the string "java
// -version" prints, e.g. `java version "1.8` for 8 and `java version
// "11` for 11 (Java dropped the 1.x versioning scheme at 9).
func javaVersionPrefix(version string) string {
	if version == "8" {
		return "1.8"
	}
	return version
}

type resolvedSource struct {
	tarballURL string
	cloneURL   string
	gitRef     string
}

func (s *Service) resolveSource(ctx context.Context) (resolvedSource, error) {
	if s.Version.TarballURL != "" {
		return resolvedSource{tarballURL: s.Version.TarballURL}, nil
	}

	ref := s.Version.GitRef
	if ref == "latest" {
		resolved, err := s.resolveLatestCommit(ctx)
		if err != nil {
			return resolvedSource{}, errs.Wrap(errs.KindConfig, err, "failed to resolve spark-git-commit=latest")
		}
		ref = resolved
	}

	return resolvedSource{
		cloneURL: fmt.Sprintf("https://github.com/%s.git", s.Version.GitRepo),
		gitRef:   ref,
	}, nil
}

// resolveLatestCommit asks the GitHub API for the HEAD commit of the
// configured repo's default branch. It does not fall back to a cached or
// guessed SHA on failure; the caller surfaces that as a configuration
// error instead.
func (s *Service) resolveLatestCommit(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/commits/HEAD", s.githubAPI, s.Version.GitRepo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("github api unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("github api returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode github api response: %w", err)
	}
	if payload.SHA == "" {
		return "", fmt.Errorf("github api response did not include a commit sha")
	}
	return payload.SHA, nil
}

func (s *Service) Configure(ctx context.Context, sctx *service.Context, node service.Node) error {
	localDirs := node.Mounts
	if len(localDirs) == 0 {
		localDirs = []string{sctx.StoragePath}
	}
	dirs := make([]string, len(localDirs))
	for i, dir := range localDirs {
		dirs[i] = dir + "/spark/local"
	}

	cpus := node.CPUCount
	if cpus <= 0 {
		cpus = 1
	}

	var env bytes.Buffer
	if err := sparkEnvTemplate.Execute(&env, envData{
		MasterPrivateAddress: sctx.Master.Node.PrivateAddress,
		StoragePath:          sctx.StoragePath,
		LocalDirs:            strings.Join(dirs, ","),
		InstallDir:           s.InstallDir,
		WorkerCores:          cpus,
		ExecutorCores:        cpus,
		ExecutorInstances:    1,
		PublicDNS:            node.PublicDNS,
	}); err != nil {
		return fmt.Errorf("failed to render spark-env.sh: %w", err)
	}

	if err := sctx.Executor.Copy(ctx, node.Conn, env.Bytes(), s.InstallDir+"/conf/spark-env.sh", 0755); err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to upload spark-env.sh")
	}

	addresses := make([]string, 0, len(sctx.Slaves))
	for _, slave := range sctx.Slaves {
		addresses = append(addresses, slave.Node.PrivateAddress)
	}
	var slaves bytes.Buffer
	if err := slavesTemplate.Execute(&slaves, slavesData{SlavePrivateAddresses: addresses}); err != nil {
		return fmt.Errorf("failed to render slaves file: %w", err)
	}

	if err := sctx.Executor.Copy(ctx, node.Conn, slaves.Bytes(), s.InstallDir+"/conf/slaves", 0644); err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to upload slaves file")
	}

	return nil
}

func (s *Service) StartMaster(ctx context.Context, sctx *service.Context) error {
	result, err := sctx.Executor.Run(ctx, sctx.Master.Conn, s.InstallDir+"/sbin/start-master.sh")
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to start spark master")
	}
	if result.ExitCode != 0 {
		return errs.New(errs.KindRemoteCommand, fmt.Sprintf("start-master.sh exited %d: %s", result.ExitCode, result.Stderr))
	}
	return nil
}

func (s *Service) StartSlave(ctx context.Context, sctx *service.Context, node service.Node) error {
	masterURL := fmt.Sprintf("spark://%s:%d", sctx.Master.Node.PrivateAddress, masterRPCPort)
	cmd := fmt.Sprintf("%s/sbin/start-slave.sh %s", s.InstallDir, shQuote(masterURL))
	result, err := sctx.Executor.Run(ctx, node.Conn, cmd)
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to start spark worker")
	}
	if result.ExitCode != 0 {
		return errs.New(errs.KindRemoteCommand, fmt.Sprintf("start-slave.sh exited %d: %s", result.ExitCode, result.Stderr))
	}
	return nil
}

func (s *Service) Stop(ctx context.Context, sctx *service.Context, node service.Node) error {
	script := "stop-slave.sh"
	if node.Node == sctx.Master.Node {
		script = "stop-master.sh"
	}
	_, err := sctx.Executor.Run(ctx, node.Conn, s.InstallDir+"/sbin/"+script)
	if err != nil {
		return errs.Wrap(errs.KindRemoteCommand, err, "failed to stop spark")
	}
	return nil
}

// HealthCheck reports the master healthy once its web UI reports the
// expected number of live workers. It polls over the node's private
// address rather than SPARK_PUBLIC_DNS (Open Question Q3): that address
// is what Flintrock itself always has, and SPARK_PUBLIC_DNS may be unset
// on a node whose IMDS is unreachable.
func (s *Service) HealthCheck(sctx *service.Context, node service.Node) health.Checker {
	if node.Node != sctx.Master.Node {
		checker := health.NewHTTPChecker(fmt.Sprintf("http://%s:%d/", node.Node.PrivateAddress, workerWebUIPort))
		checker.WithTimeout(5 * time.Second)
		return checker
	}

	expectedWorkers := len(sctx.Slaves)
	checker := health.NewHTTPChecker(fmt.Sprintf("http://%s:%d/json/", node.Node.PrivateAddress, masterWebUIPort))
	checker.BodyPredicate = func(body []byte) (bool, string) {
		var status struct {
			Workers []struct {
				State string `json:"state"`
			} `json:"workers"`
		}
		if err := json.Unmarshal(body, &status); err != nil {
			return false, fmt.Sprintf("failed to parse master status json: %v", err)
		}
		alive := 0
		for _, w := range status.Workers {
			if w.State == "ALIVE" {
				alive++
			}
		}
		if alive < expectedWorkers {
			return false, fmt.Sprintf("master reports %d/%d workers alive", alive, expectedWorkers)
		}
		return true, fmt.Sprintf("master reports %d/%d workers alive", alive, expectedWorkers)
	}
	checker.WithTimeout(5 * time.Second)
	return checker
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
