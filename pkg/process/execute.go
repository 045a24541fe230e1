package process

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"
)

type ExecutionConfig struct {
	Argv             []string `yaml:"argv"`
	Environment      []string `yaml:"environment,omitempty"`
	WorkingDirectory string   `yaml:"working_directory"`

	// File receiving the child's stdout and stderr. When empty the output is
	// kept in memory, which only works while this process stays alive.
	OutputFile string `yaml:"output_file,omitempty"`
}

const diagnosticTailBytes = 4096

// Child is a spawned process that is reaped in the background
type Child struct {
	Pid int

	outputFile string
	memOutput  *tailBuffer

	done    chan struct{}
	exitErr error
}

// Exited is closed once the child has exited and been reaped
func (c *Child) Exited() <-chan struct{} {
	return c.done
}

// ExitError is the result of Wait, only meaningful after Exited is closed
func (c *Child) ExitError() error {
	select {
	case <-c.done:
		return c.exitErr
	default:
		return nil
	}
}

// ExitedWithin waits up to d and reports whether the child exited in that window
func (c *Child) ExitedWithin(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}

	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// OutputTail returns the last bytes the child wrote, trimmed
func (c *Child) OutputTail() string {
	if c.memOutput != nil {
		return strings.TrimSpace(c.memOutput.String())
	}
	return TailFile(c.outputFile, diagnosticTailBytes)
}

// Start spawns the configured command in its own process group. The child is not
// bound to any context: it must outlive the call that started it.
func Start(execution ExecutionConfig, id string, logger logging.Logger) (*Child, error) {
	if err := ValidateExecutionConfig(execution); err != nil {
		logger.Errorf("Execution configuration validation failed, id: %s, error: %v", id, err)
		return nil, errors.NewValidationError("invalid execution configuration", err).WithContext("id", id)
	}

	logger.Debugf("Executing process, id: %s, argv: %v, working directory: '%s', output: '%s'",
		id, execution.Argv, execution.WorkingDirectory, execution.OutputFile)

	cmd := exec.Command(execution.Argv[0], execution.Argv[1:]...)
	cmd.Dir = execution.WorkingDirectory
	cmd.Env = append(os.Environ(), execution.Environment...)

	// Platform-specific setup is handled in execute_windows.go or execute_unix.go
	setupProcessAttributes(cmd)

	child := &Child{
		outputFile: execution.OutputFile,
		done:       make(chan struct{}),
	}

	var outputFile *os.File
	if execution.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(execution.OutputFile), 0755); err != nil {
			return nil, errors.NewIOError("failed to create output directory", err).WithContext("id", id)
		}
		f, err := os.OpenFile(execution.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, errors.NewIOError("failed to open output file", err).WithContext("id", id).WithContext("output_file", execution.OutputFile)
		}
		outputFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	} else {
		child.memOutput = newTailBuffer(diagnosticTailBytes)
		cmd.Stdout = child.memOutput
		cmd.Stderr = child.memOutput
	}

	err := cmd.Start()
	if outputFile != nil {
		// The child holds its own descriptor
		outputFile.Close()
	}
	if err != nil {
		return nil, errors.NewProcessError("failed to start the process", err).WithContext("id", id).WithContext("argv", execution.Argv)
	}

	child.Pid = cmd.Process.Pid
	go func() {
		child.exitErr = cmd.Wait()
		close(child.done)
	}()

	logger.Infof("Successfully executed process, id: %s, PID: %d", id, child.Pid)

	return child, nil
}

// TailFile returns up to maxBytes from the end of path, trimmed. Missing files yield "".
func TailFile(path string, maxBytes int64) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mutex sync.Mutex
	limit int
	buf   bytes.Buffer
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.buf.Write(p)
	if extra := t.buf.Len() - t.limit; extra > 0 {
		t.buf.Next(extra)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.buf.String()
}
