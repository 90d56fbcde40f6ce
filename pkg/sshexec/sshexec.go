package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nchammas/flintrock/pkg/log"
	"github.com/nchammas/flintrock/pkg/metrics"
	"golang.org/x/crypto/ssh"
)

// Config holds the connection parameters shared by every node in a
// cluster. Flintrock uses a single SSH identity per cluster rather than
// per-node credentials.
type Config struct {
	User    string
	KeyPath string // path to an unencrypted PEM private key
	Port    int    // defaults to 22

	ConnectTimeout time.Duration // per-dial timeout
	MaxRetries     int           // dial attempts before giving up
	RetryInterval  time.Duration // base delay between retries
}

// DefaultConfig returns sane defaults for Connect's retry and timeout
// behavior.
func DefaultConfig(user, keyPath string) Config {
	return Config{
		User:           user,
		KeyPath:        keyPath,
		Port:           22,
		ConnectTimeout: 10 * time.Second,
		MaxRetries:     20,
		RetryInterval:  5 * time.Second,
	}
}

// Connection is a live SSH session to one node.
type Connection struct {
	Address string
	client  *ssh.Client
}

// Result is the outcome of a single remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor connects to and runs commands against cluster nodes.
type Executor struct {
	cfg    Config
	signer ssh.Signer
}

// New parses the configured private key and returns an Executor ready to
// Connect to nodes.
func New(cfg Config, keyPEM []byte) (*Executor, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	signer, err := ssh.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", cfg.KeyPath, err)
	}
	return &Executor{cfg: cfg, signer: signer}, nil
}

// Connect dials address up to MaxRetries times with a linear backoff
// (RetryInterval times the number of attempts made so far) until a dial
// succeeds, the attempts are exhausted, or ctx is cancelled. Nodes
// frequently aren't accepting SSH sessions yet immediately after the
// provider reports them running, so this retry loop absorbs the
// boot-time failures that remain after the provider's WaitReachable has
// seen port 22 accept a TCP connection.
func (e *Executor) Connect(ctx context.Context, address string) (*Connection, error) {
	clientCfg := &ssh.ClientConfig{
		User:            e.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.cfg.ConnectTimeout,
	}

	target := net.JoinHostPort(address, fmt.Sprintf("%d", e.cfg.Port))

	attempts := e.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.SSHConnectRetries.Inc()
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("connect to %s cancelled: %w", target, ctx.Err())
			case <-time.After(time.Duration(attempt) * e.cfg.RetryInterval):
			}
		}

		client, err := ssh.Dial("tcp", target, clientCfg)
		if err == nil {
			return &Connection{Address: address, client: client}, nil
		}
		lastErr = err
		log.WithComponent("sshexec").Debug().
			Str("address", address).
			Int("attempt", attempt).
			Err(err).
			Msg("ssh connect attempt failed")
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", target, attempts, lastErr)
}

// Run executes command on an already-established connection and waits
// for it to complete. A non-zero ExitCode is not itself an error; the
// caller decides whether that counts as failure for its purpose.
func (e *Executor) Run(ctx context.Context, conn *Connection, command string) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SSHCommandDuration)

	session, err := conn.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open session to %s: %w", conn.Address, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return Result{}, fmt.Errorf("command on %s cancelled: %w", conn.Address, ctx.Err())
	case err := <-done:
		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return Result{}, fmt.Errorf("command on %s failed: %w", conn.Address, err)
			}
		}
		if exitCode != 0 {
			metrics.SSHCommandFailures.Inc()
		}
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
	}
}

// Copy writes content to remotePath on the node with the given file
// mode. Flintrock has no dependency carrying an SFTP client in its
// stack, so Copy streams the file over a plain "cat > path" pipeline on
// a single SSH session's stdin, the same mechanism the original
// command-line scp tool used before SFTP became universal.
func (e *Executor) Copy(ctx context.Context, conn *Connection, content []byte, remotePath string, mode uint32) error {
	session, err := conn.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session to %s: %w", conn.Address, err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdin to %s: %w", conn.Address, err)
	}

	// Stage to a sibling temp file and rename into place so a client
	// crash or connection drop mid-write never leaves remotePath holding
	// a partial file; mv within the same directory is an atomic rename
	// on every filesystem these nodes run (ext4, xfs).
	tmpPath := remotePath + ".flintrock-tmp"
	command := fmt.Sprintf(
		"cat > %s && chmod %o %s && mv -f %s %s",
		shellQuote(tmpPath), mode, shellQuote(tmpPath), shellQuote(tmpPath), shellQuote(remotePath),
	)
	if err := session.Start(command); err != nil {
		return fmt.Errorf("failed to start copy to %s: %w", conn.Address, err)
	}

	if _, err := stdin.Write(content); err != nil {
		stdin.Close()
		return fmt.Errorf("failed to write %s to %s: %w", remotePath, conn.Address, err)
	}
	stdin.Close()

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return fmt.Errorf("copy to %s cancelled: %w", conn.Address, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to copy %s to %s: %w", remotePath, conn.Address, err)
		}
		return nil
	}
}

// Close closes the underlying SSH connection.
func (e *Executor) Close(conn *Connection) error {
	if conn == nil || conn.client == nil {
		return nil
	}
	return conn.client.Close()
}

func shellQuote(s string) string {
	return "'" + s + "'"
}

// FanOut runs fn against each item in items with at most concurrency
// goroutines in flight at once, and returns one error per item in the
// same order as items (nil for items that succeeded). A single
// misbehaving node never blocks the others, and the caller gets a
// complete picture of which nodes failed rather than just the first
// failure, which is what the orchestrator needs to decide whether a
// launch should roll back entirely or an add-slaves can proceed with
// the slaves that did succeed.
func FanOut[T any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, item T) error) []error {
	if concurrency <= 0 {
		concurrency = len(items)
	}
	errs := make([]error, len(items))
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			errs[i] = fn(ctx, item)
		}()
	}

	wg.Wait()
	return errs
}
