package accounting

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySource struct {
	failures int
	calls    int
	block    bool
}

func (f *flakySource) Fetch(ctx context.Context, jobID string) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.calls <= f.failures {
		return "", errors.New("slurmdbd unavailable")
	}
	return "dump for " + jobID, nil
}

func recordSleeps(s *RetryingSource) *[]time.Duration {
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return &slept
}

func TestRetryingSource_SucceedsAfterFailures(t *testing.T) {
	inner := &flakySource{failures: 2}
	s := NewRetryingSource(inner, 3, time.Second, time.Second)
	slept := recordSleeps(s)

	text, err := s.Fetch(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "dump for 42", text)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestRetryingSource_ExhaustsRetries(t *testing.T) {
	inner := &flakySource{failures: 10}
	s := NewRetryingSource(inner, 3, time.Second, 20*time.Second)
	slept := recordSleeps(s)

	_, err := s.Fetch(context.Background(), "42")
	require.Error(t, err)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "42", fe.JobID)
	assert.Equal(t, 3, fe.Attempts)
	assert.Contains(t, fe.Error(), "slurmdbd unavailable")
	assert.Equal(t, 3, inner.calls)
	// doubling is capped
	assert.Equal(t, []time.Duration{20 * time.Second, 30 * time.Second}, *slept)
}

func TestRetryingSource_AttemptTimeout(t *testing.T) {
	inner := &flakySource{block: true}
	s := NewRetryingSource(inner, 2, 10*time.Millisecond, 0)

	_, err := s.Fetch(context.Background(), "7")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Attempts)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRetryingSource_StopsOnCancel(t *testing.T) {
	inner := &flakySource{failures: 10}
	s := NewRetryingSource(inner, 5, time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := s.Fetch(ctx, "9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, inner.calls)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "123.txt"), []byte("JobID\n"), 0644))

	s := NewFileSource(dir)
	text, err := s.Fetch(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "JobID\n", text)

	_, err = s.Fetch(context.Background(), "404")
	assert.Error(t, err)
}

func TestSacctSource(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	text, err := NewSacctSource("echo").Fetch(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "-j 123 --format="+sacctFormat+"\n", text)

	if _, err := exec.LookPath("false"); err == nil {
		_, err := NewSacctSource("false").Fetch(context.Background(), "123")
		assert.Error(t, err)
	}
}
