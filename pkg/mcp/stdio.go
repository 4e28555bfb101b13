package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// stdioTransport talks to an MCP server spawned as a child process, one JSON
// message per line on its stdin/stdout. Stderr is captured so it can be
// surfaced when the process dies.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	pr     *io.PipeReader
	reader *bufio.Reader

	stderr   *bytes.Buffer
	stderrMu sync.Mutex

	writeMu sync.Mutex // serializes writes to stdin

	exited   atomic.Bool
	exitErr  atomic.Pointer[string]
	waitDone chan struct{} // closed once cmd.Wait returns

	closeOnce sync.Once
}

// newStdioTransport spawns the child process with piped stdin/stdout. The
// child inherits the parent environment plus any overrides. Spawn failure is
// terminal for this attempt.
func newStdioTransport(command string, args []string, env map[string]string) (*stdioTransport, error) {
	cmd := exec.Command(command, args...)

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Op: "spawn", Err: fmt.Errorf("start %s: %w", command, err)}
	}

	// Route stdout through an io.Pipe so the child can be reaped as soon as
	// it exits without cmd.Wait discarding buffered output.
	pr, pw := io.Pipe()
	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})

	t := &stdioTransport{
		cmd:      cmd,
		stdin:    stdinPipe,
		pr:       pr,
		reader:   bufio.NewReaderSize(pr, 1<<20), // 1 MiB for large tool results
		stderr:   &bytes.Buffer{},
		waitDone: make(chan struct{}),
	}

	go func() {
		defer close(stdoutDone)
		_, copyErr := io.Copy(pw, stdoutPipe)
		if copyErr == nil {
			copyErr = io.EOF
		}
		pw.CloseWithError(copyErr)
	}()
	go t.drainStderr(stderrPipe, stderrDone)
	go t.wait(stdoutDone, stderrDone)

	return t, nil
}

// drainStderr buffers the tail of the child's stderr for error reporting.
func (t *stdioTransport) drainStderr(r io.Reader, done chan struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.stderrMu.Lock()
		// Keep the buffer bounded; old output is rarely the interesting part.
		if t.stderr.Len() > 32*1024 {
			t.stderr.Reset()
		}
		t.stderr.WriteString(scanner.Text())
		t.stderr.WriteByte('\n')
		t.stderrMu.Unlock()
	}
}

// wait reaps the child once both pipes are drained and records the exit so
// Alive can answer without blocking.
func (t *stdioTransport) wait(stdoutDone, stderrDone chan struct{}) {
	<-stdoutDone
	<-stderrDone
	err := t.cmd.Wait()
	msg := "process exited"
	if err != nil {
		msg = fmt.Sprintf("process exited: %v", err)
	}
	t.exitErr.Store(&msg)
	t.exited.Store(true)
	close(t.waitDone)
}

// stderrTail returns the buffered stderr output, trimmed.
func (t *stdioTransport) stderrTail() string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()
	return strings.TrimSpace(t.stderr.String())
}

// ReadMessage returns the next newline-delimited message from stdout.
func (t *stdioTransport) ReadMessage() ([]byte, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		if len(line) > 0 {
			// Partial final line without trailing newline.
			return bytes.TrimSpace(line), nil
		}
		if tail := t.stderrTail(); tail != "" {
			return nil, &TransportError{Op: "read", Err: fmt.Errorf("%w; stderr: %s", err, tail)}
		}
		return nil, &TransportError{Op: "read", Err: err}
	}
	return bytes.TrimSpace(line), nil
}

// WriteMessage writes one message plus the newline delimiter to stdin.
func (t *stdioTransport) WriteMessage(_ context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Alive reports whether the child process is still running.
func (t *stdioTransport) Alive() error {
	if !t.exited.Load() {
		return nil
	}
	msg := "process exited"
	if p := t.exitErr.Load(); p != nil {
		msg = *p
	}
	if tail := t.stderrTail(); tail != "" {
		return &TransportError{Op: "closed", Err: fmt.Errorf("%s; stderr: %s", msg, tail)}
	}
	return &TransportError{Op: "closed", Err: fmt.Errorf("%s", msg)}
}

// Close terminates the child: close stdin, SIGTERM, wait briefly, SIGKILL.
func (t *stdioTransport) Close() error {
	t.closeOnce.Do(func() {
		t.stdin.Close()
		// Unblock the stdout copier in case nobody is reading anymore.
		t.pr.CloseWithError(io.ErrClosedPipe)

		if t.cmd.Process != nil {
			_ = t.cmd.Process.Signal(syscall.SIGTERM)
		}

		select {
		case <-t.waitDone:
		case <-time.After(5 * time.Second):
			if t.cmd.Process != nil {
				_ = t.cmd.Process.Kill()
			}
			<-t.waitDone
		}
	})
	return nil
}
