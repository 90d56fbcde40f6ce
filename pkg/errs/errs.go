// Package errs classifies engine errors into the kinds cmd/flintrock
// uses to choose a process exit code and a user-facing message, without
// forcing every caller to import cobra or know about exit codes.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. See spec §7 for the full
// taxonomy; cmd/flintrock maps each Kind to an exit code.
type Kind string

const (
	// KindConfig covers invalid or unresolvable input: a bad AMI, an
	// unreachable GitHub API when resolving spark-git-commit=latest, a
	// cluster name that doesn't match the required pattern.
	KindConfig Kind = "config-error"

	// KindProvider covers EC2 API failures: throttling, permission
	// denied, capacity errors, malformed responses.
	KindProvider Kind = "provider-error"

	// KindNetwork covers SSH connection failures distinct from the
	// remote command itself failing: timeouts, refused connections,
	// DNS failures resolving a node's public address.
	KindNetwork Kind = "network-error"

	// KindRemoteCommand covers a remote command that ran but exited
	// non-zero.
	KindRemoteCommand Kind = "remote-command-error"

	// KindHealthCheck covers a service that never became healthy within
	// its configured retry budget.
	KindHealthCheck Kind = "health-check-failed"

	// KindWrongState covers an operation requested against a cluster in
	// a state that doesn't support it, e.g. add-slaves on a Stopped
	// cluster.
	KindWrongState Kind = "wrong-state"

	// KindInconsistent covers a cluster whose nodes disagree about
	// their collective state badly enough that Flintrock can't safely
	// decide what operations are valid.
	KindInconsistent Kind = "inconsistent-cluster"
)

// engineError pairs a Kind with a wrapped cause.
type engineError struct {
	kind Kind
	msg  string
	err  error
}

func (e *engineError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *engineError) Unwrap() error {
	return e.err
}

// New creates an error of the given kind with no wrapped cause.
func New(kind Kind, msg string) error {
	return &engineError{kind: kind, msg: msg}
}

// Wrap creates an error of the given kind that wraps err, the way
// fmt.Errorf("...: %w", err) does elsewhere in this codebase, but
// additionally tagging the failure with a Kind.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &engineError{kind: kind, msg: msg, err: err}
}

// KindOf extracts the Kind tagged onto err by New or Wrap, anywhere in
// its wrap chain. It returns ("", false) for errors that were never
// tagged with a Kind.
func KindOf(err error) (Kind, bool) {
	var ee *engineError
	if errors.As(err, &ee) {
		return ee.kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its wrap
// chain.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
