// Package siril bridges generated scripts to a Siril host, either through
// the command pipes of a running GUI instance or by spawning siril-cli in
// batch mode. Script generation never depends on this package being able
// to connect.
package siril

import (
	"context"
	"errors"
)

// ErrNotConnected is the single connection failure reported to users. Any
// lower-level reason (missing pipes, timeout, closed socket) collapses into
// this; the remedy is always the same.
var ErrNotConnected = errors.New("could not connect to the host application")

// ManualRunHint tells the user what to do when no connection is available.
const ManualRunHint = "copy the generated script and run it manually in the host application"

// Client executes single commands against a running host instance.
type Client interface {
	// Connect establishes the session. Failure is reported as ErrNotConnected.
	Connect(ctx context.Context) error
	// Send executes one command and waits for its completion status.
	Send(ctx context.Context, command string) error
	Close() error
}
