package siril

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Names of the command pipes a running Siril instance exposes.
const (
	pipeIn  = "siril_command.in"
	pipeOut = "siril_command.out"
)

// PipeClient talks to a running GUI instance through its named command
// pipes. Commands are written one per line to the input pipe; the output
// pipe streams log lines and a final status line per command.
type PipeClient struct {
	dir string
	log *slog.Logger

	mu  sync.Mutex
	in  *os.File
	out *bufio.Scanner
	rd  *os.File
}

// NewPipeClient creates a client over the pipes in dir, typically /tmp.
func NewPipeClient(dir string, log *slog.Logger) *PipeClient {
	return &PipeClient{dir: dir, log: log}
}

// Connect opens both command pipes. Opening a FIFO blocks until the other
// end is attached, so the open runs under the context deadline; the caller
// sets the configured connect timeout.
func (c *PipeClient) Connect(ctx context.Context) error {
	inPath := filepath.Join(c.dir, pipeIn)
	outPath := filepath.Join(c.dir, pipeOut)

	for _, p := range []string{inPath, outPath} {
		if _, err := os.Stat(p); err != nil {
			c.log.Debug("command pipe missing", "path", p)
			return ErrNotConnected
		}
	}

	type opened struct {
		in, out *os.File
		err     error
	}
	done := make(chan opened, 1)
	go func() {
		out, err := os.OpenFile(outPath, os.O_RDONLY, 0)
		if err != nil {
			done <- opened{err: err}
			return
		}
		in, err := os.OpenFile(inPath, os.O_WRONLY, 0)
		if err != nil {
			out.Close()
			done <- opened{err: err}
			return
		}
		done <- opened{in: in, out: out}
	}()

	select {
	case <-ctx.Done():
		return ErrNotConnected
	case res := <-done:
		if res.err != nil {
			c.log.Debug("pipe open failed", "error", res.err)
			return ErrNotConnected
		}
		c.mu.Lock()
		c.in = res.in
		c.rd = res.out
		c.out = bufio.NewScanner(res.out)
		c.mu.Unlock()
		c.log.Info("connected to host command pipes", "dir", c.dir)
		return nil
	}
}

// Send writes one command and reads the output pipe until its status line
// arrives. Log lines in between are forwarded at debug level.
func (c *PipeClient) Send(ctx context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in == nil {
		return ErrNotConnected
	}

	if _, err := fmt.Fprintln(c.in, command); err != nil {
		return ErrNotConnected
	}

	type status struct {
		ok  bool
		msg string
		err error
	}
	done := make(chan status, 1)
	go func() {
		for c.out.Scan() {
			line := strings.TrimSpace(c.out.Text())
			switch {
			case strings.HasPrefix(line, "log:"):
				c.log.Debug("host log", "line", strings.TrimSpace(strings.TrimPrefix(line, "log:")))
			case strings.HasPrefix(line, "ready"):
				// Startup banner, ignore.
			case strings.HasPrefix(line, "status:"):
				msg := strings.TrimSpace(strings.TrimPrefix(line, "status:"))
				done <- status{ok: strings.HasPrefix(msg, "success"), msg: msg}
				return
			}
		}
		done <- status{err: c.out.Err()}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case st := <-done:
		if st.err != nil {
			return ErrNotConnected
		}
		if !st.ok {
			return fmt.Errorf("command %q failed: %s", command, st.msg)
		}
		return nil
	}
}

// Close releases both pipe ends.
func (c *PipeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	if c.in != nil {
		first = c.in.Close()
		c.in = nil
	}
	if c.rd != nil {
		if err := c.rd.Close(); err != nil && first == nil {
			first = err
		}
		c.rd = nil
	}
	c.out = nil
	return first
}
