package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// maxOutput bounds what is kept from the agent's stdout and stderr
const maxOutput = 1024 * 1024

// ErrTimeout is returned when the agent does not finish in time
var ErrTimeout = errors.New("agent timed out")

// Response is the JSON document the agent prints on stdout
type Response struct {
	OK    bool           `json:"ok"`
	Error *ResponseError `json:"error,omitempty"`
	Reply string         `json:"reply,omitempty"` // optional synchronous answer
}

// ResponseError is a structured decline
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Runner starts the agent command once per request
type Runner struct {
	command string
	args    []string
	dir     string
	env     []string
	timeout time.Duration
	logger  *slog.Logger
}

// RunnerOptions configures a Runner
type RunnerOptions struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string // added to the inherited environment
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRunner creates a new agent runner
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Runner{
		command: opts.Command,
		args:    opts.Args,
		dir:     opts.Dir,
		env:     env,
		timeout: timeout,
		logger:  logger.With("component", "agent"),
	}
}

// Run writes input to the agent's stdin and parses its reply.
//
// A structured response (ok true or false) is returned with a nil error even
// when the process exits non-zero. Launch failures, timeouts and unstructured
// non-zero exits are returned as errors. A zero exit without a parseable
// response counts as success.
func (r *Runner) Run(ctx context.Context, input []byte) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Dir = r.dir
	cmd.Env = r.env
	cmd.Stdin = bytes.NewReader(input)
	stdout := &limitedBuffer{max: maxOutput}
	stderr := &limitedBuffer{max: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if stderr.Len() > 0 {
		r.logger.Debug("agent stderr", "output", lastLines(stderr.String(), 5))
	}

	if ctx.Err() == context.DeadlineExceeded {
		return Response{}, fmt.Errorf("%w after %s", ErrTimeout, r.timeout)
	}

	resp, parsed := parseResponse(stdout.Bytes())
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Response{}, fmt.Errorf("start agent: %w", runErr)
		}
		if parsed {
			return resp, nil
		}
		return Response{}, fmt.Errorf("agent exited with code %d: %s", exitErr.ExitCode(), lastLines(stderr.String(), 3))
	}

	r.logger.Debug("agent finished", "elapsed", elapsed, "structured", parsed)
	if !parsed {
		return Response{OK: true}, nil
	}
	return resp, nil
}

// parseResponse takes the last line of stdout that decodes as a response object,
// so agents may print progress before the result.
func parseResponse(out []byte) (Response, bool) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), maxOutput)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.HasPrefix(lines[i], "{") {
			continue
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(lines[i]), &probe); err != nil {
			continue
		}
		if _, ok := probe["ok"]; !ok {
			continue
		}
		var resp Response
		if err := json.Unmarshal([]byte(lines[i]), &resp); err != nil {
			continue
		}
		return resp, true
	}
	return Response{}, false
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// limitedBuffer keeps at most max bytes and drops the rest
type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := b.max - b.Buffer.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		b.Buffer.Write(p)
	}
	return n, nil
}
