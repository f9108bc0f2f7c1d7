package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Conn is a byte stream to a server.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Dialer opens a connection to a fresh server.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context) (Conn, error)

// Dial calls f.
func (f DialFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

// CommandDialer starts a server subprocess and talks to it over its
// standard input and output.
type CommandDialer struct {
	Path string
	Args []string
	Env  []string  // appended to the parent environment
	Dir  string    // working directory
	Err  io.Writer // receives the child's stderr, os.Stderr when nil
}

// Command returns a dialer running name with args, typically
// Command("shade", "--socket").
func Command(name string, args ...string) *CommandDialer {
	return &CommandDialer{Path: name, Args: args}
}

// Dial starts the process. It is killed when the connection is closed.
func (d *CommandDialer) Dial(ctx context.Context) (Conn, error) {
	// The process must outlive ctx, which only bounds the dial.
	cmd := exec.Command(d.Path, d.Args...) //nolint:gosec // caller chooses the server binary
	cmd.Dir = d.Dir
	if len(d.Env) > 0 {
		cmd.Env = append(os.Environ(), d.Env...)
	}
	cmd.Stderr = d.Err
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("client: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("client: stdout pipe: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("client: start %s: %w", d.Path, err)
	}
	return &processConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

type processConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	once sync.Once
	err  error
}

func (c *processConn) Read(p []byte) (int, error)  { return c.stdout.Read(p) }
func (c *processConn) Write(p []byte) (int, error) { return c.stdin.Write(p) }

// Close closes stdin, kills the process and reaps it.
func (c *processConn) Close() error {
	c.once.Do(func() {
		_ = c.stdin.Close()
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		err := c.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			c.err = err
		}
	})
	return c.err
}
