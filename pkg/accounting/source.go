package accounting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"stagecost/pkg/interfaces"
	"stagecost/pkg/logger"

	"go.uber.org/zap"
)

// sacctFormat is the column list requested from sacct. The widened JobID and
// State columns keep array step ids and states from being truncated.
const sacctFormat = "JobID%20,NodeList,ReqMem,MaxRSS,MaxVMSize,AveRSS,AveVMSize,Elapsed,State%12"

const maxBackoff = 30 * time.Second

// SacctSource runs sacct for each job id.
type SacctSource struct {
	command string
}

// NewSacctSource creates a source that runs command (normally "sacct").
func NewSacctSource(command string) *SacctSource {
	if command == "" {
		command = "sacct"
	}
	return &SacctSource{command: command}
}

// Fetch implements interfaces.AccountingSource.
func (s *SacctSource) Fetch(ctx context.Context, jobID string) (string, error) {
	cmd := exec.CommandContext(ctx, s.command, "-j", jobID, "--format="+sacctFormat)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s -j %s: %w: %s", s.command, jobID, err, msg)
		}
		return "", fmt.Errorf("%s -j %s: %w", s.command, jobID, err)
	}
	return stdout.String(), nil
}

// FileSource reads pre-captured dumps named <dir>/<jobid>.txt.
type FileSource struct {
	dir string
}

// NewFileSource creates a source reading from dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Fetch implements interfaces.AccountingSource.
func (s *FileSource) Fetch(ctx context.Context, jobID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, jobID+".txt"))
	if err != nil {
		return "", fmt.Errorf("failed to read accounting dump: %w", err)
	}
	return string(data), nil
}

// RetryingSource retries a source with a per-attempt timeout and
// exponential backoff between attempts.
type RetryingSource struct {
	inner   interfaces.AccountingSource
	retries int
	timeout time.Duration
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewRetryingSource wraps inner. retries is the total number of attempts.
func NewRetryingSource(inner interfaces.AccountingSource, retries int, timeout, backoff time.Duration) *RetryingSource {
	if retries < 1 {
		retries = 1
	}
	return &RetryingSource{
		inner:   inner,
		retries: retries,
		timeout: timeout,
		backoff: backoff,
		sleep:   sleepCtx,
	}
}

// Fetch implements interfaces.AccountingSource. The error after the last
// attempt is a *FetchError.
func (s *RetryingSource) Fetch(ctx context.Context, jobID string) (string, error) {
	var lastErr error
	delay := s.backoff
	attempts := 0
	for attempts < s.retries {
		attempts++
		text, err := s.attempt(ctx, jobID)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempts == s.retries {
			break
		}

		logger.Warn("accounting fetch failed, retrying",
			zap.String("run_id", logger.RunID(ctx)),
			zap.String("job_id", jobID),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err))
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
	return "", &FetchError{JobID: jobID, Attempts: attempts, Err: lastErr}
}

func (s *RetryingSource) attempt(ctx context.Context, jobID string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	text, err := s.inner.Fetch(ctx, jobID)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("timed out after %v: %w", s.timeout, err)
	}
	return text, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
