package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console is the headless front end: one input line per message, the log
// goes to out.
type Console struct {
	in  io.Reader
	out io.Writer

	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out, done: make(chan struct{})}
}

func (c *Console) Log(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, text)
}

// Shutdown makes Run return. It never blocks.
func (c *Console) Shutdown() {
	c.stopOnce.Do(func() { close(c.done) })
}

// Run reads lines until EOF, ctx is done, Shutdown is called, or a quit
// line is entered.
func (c *Console) Run(ctx context.Context, mesh Mesh) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimRight(scanner.Text(), "\r"):
			case <-c.done:
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			c.Shutdown()
			return nil
		case <-c.done:
			return nil
		case err := <-errc:
			c.Shutdown()
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			return nil
		case line := <-lines:
			if submitInput(mesh, c.Log, line) {
				c.Shutdown()
				return nil
			}
		}
	}
}
