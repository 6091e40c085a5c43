package siril

import (
	"context"

	"prepflow/internal/script"
)

// CommandResult reports the outcome of one dispatched command.
type CommandResult struct {
	Index   int
	Command string
	Err     error
}

// Ok reports success.
func (r CommandResult) Ok() bool { return r.Err == nil }

// RunScript dispatches the script's commands to the client one at a time,
// in script order, stopping at the first failure. onResult is called after
// every attempted command; it may be nil.
func RunScript(ctx context.Context, c Client, s *script.Script, onResult func(CommandResult)) error {
	for i, cmd := range s.Commands() {
		err := c.Send(ctx, cmd)
		if onResult != nil {
			onResult(CommandResult{Index: i, Command: cmd, Err: err})
		}
		if err != nil {
			return err
		}
	}
	return nil
}
