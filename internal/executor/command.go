package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/btouchard/oibench/internal/task"
)

const defaultWaitDelay = 10 * time.Second

// CommandExecutor runs each task in an external worker process.
//
// The worker receives the prompt on stdin and the path of the command JSON in
// OIBENCH_COMMAND_FILE. Each stdout line is forwarded verbatim to the task's
// channel; lines holding a JSON message are also collected for judging.
// Stderr lines are reported as progress.
type CommandExecutor struct {
	Program   string
	Args      []string
	WorkDir   string
	Env       map[string]string
	Judge     task.Judge
	WaitDelay time.Duration
}

func (e *CommandExecutor) Execute(ctx context.Context, req Request, rec Recorder) (*Result, error) {
	if rec == nil {
		rec = DiscardRecorder
	}

	cmdPath, err := WriteCommandFile(e.WorkDir, req.Task.ID, req.Command)
	if err != nil {
		return nil, fmt.Errorf("writing command: %w", err)
	}
	defer CleanupTaskDir(e.WorkDir, req.Task.ID)

	cmd := exec.CommandContext(ctx, e.Program, e.Args...)
	cmd.Dir = TaskDir(e.WorkDir, req.Task.ID)
	cmd.Stdin = strings.NewReader(req.Task.Prompt)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}

	cmd.Env = os.Environ()
	for k, v := range e.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env,
		"OIBENCH_TASK_ID="+req.Task.ID,
		"OIBENCH_COMMAND_FILE="+cmdPath,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", e.Program, err)
	}

	slog.Info("worker process started",
		"task_id", req.Task.ID,
		"pid", cmd.Process.Pid)
	rec.Log(fmt.Sprintf("PID %d", cmd.Process.Pid))

	// Both readers must finish before Wait returns the pipes to the runtime.
	var wg sync.WaitGroup
	result := &Result{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		result.Messages = e.parseStream(req.Task.ID, stdout, rec)
	}()
	go func() {
		defer wg.Done()
		e.forwardStderr(req.Task.ID, stderr, rec)
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	result.Duration = time.Since(start)

	if waitErr != nil {
		result.Status = task.StatusError
		if exitErr, ok := errors.AsType[*exec.ExitError](waitErr); ok {
			result.ExitCode = exitErr.ExitCode()
			slog.Warn("worker process exited with error",
				"task_id", req.Task.ID,
				"exit_code", result.ExitCode,
				"duration", result.Duration)
			return result, fmt.Errorf("%s exited with code %d: %w", e.Program, result.ExitCode, waitErr)
		}
		return result, fmt.Errorf("waiting for %s: %w", e.Program, waitErr)
	}

	judge := e.Judge
	if judge == nil {
		judge = task.ExpectedAnswer{}
	}
	result.Status = judge.Judge(req.Task, result.Messages)

	slog.Info("worker process completed",
		"task_id", req.Task.ID,
		"duration", result.Duration,
		"messages", len(result.Messages),
		"status", result.Status)

	return result, nil
}

func (e *CommandExecutor) parseStream(taskID string, r io.Reader, rec Recorder) []task.Message {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB max line

	var messages []task.Message
	for scanner.Scan() {
		line := scanner.Bytes()

		out := make([]byte, len(line)+1)
		copy(out, line)
		out[len(line)] = '\n'
		if _, err := rec.Write(out); err != nil {
			slog.Debug("recording output failed", "task_id", taskID, "error", err)
		}

		msg, err := ParseMessageLine(line)
		if err != nil {
			slog.Debug("stream parse error", "task_id", taskID, "error", err)
			continue
		}
		if msg != nil {
			messages = append(messages, *msg)
			if p := Progress(msg); p != "" {
				rec.Log(p)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Warn("stream scanner error", "task_id", taskID, "error", err)
		// Keep the pipe drained so the process is not blocked on a full buffer.
		_, _ = io.Copy(io.Discard, r)
	}
	return messages
}

func (e *CommandExecutor) forwardStderr(taskID string, r io.Reader, rec Recorder) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			rec.Log(line)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Debug("stderr read error", "task_id", taskID, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}
