package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mokemokechicken/spr-adbi/internal/blobio"
	"github.com/mokemokechicken/spr-adbi/internal/jobmodel"
)

// EventChangeStatus fires whenever Wait observes a new status value.
const EventChangeStatus = "change_status"

// EventChangeProgress fires whenever Wait observes a new progress value.
const EventChangeProgress = "change_progress"

// Handler receives an event payload: the new status string for
// EventChangeStatus, the new progress string for EventChangeProgress.
type Handler func(value string)

// ErrTimeout is returned by Wait when RaiseOnTimeout is true and the job
// never reached a terminal status within timeout.
var ErrTimeout = fmt.Errorf("client: wait timed out before a terminal status was observed")

// StatusUnknown is returned by Wait when the timeout elapses without a
// terminal status and RaiseOnTimeout is false, so callers can tell "the job
// errored" apart from "we gave up waiting". It is never written to the
// status file.
const StatusUnknown jobmodel.Status = "UNKNOWN"

const (
	defaultPollInterval = 3 * time.Second
	defaultTimeout      = 3600 * time.Second
)

// Job polls a JobPrefix for status, progress, and output, and dispatches
// change events to registered handlers during Wait.
type Job struct {
	prefixURI string
	io        blobio.BlobIO
	logger    *zap.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
}

func newJob(prefixURI string, io blobio.BlobIO, logger *zap.Logger) *Job {
	return &Job{
		prefixURI: prefixURI,
		io:        io,
		logger:    logger.Named("job"),
		handlers:  make(map[string][]Handler),
	}
}

// PrefixURI returns the JobPrefix this Job is bound to.
func (j *Job) PrefixURI() string { return j.prefixURI }

// On registers handler to be invoked synchronously from Wait whenever
// eventName fires.
func (j *Job) On(eventName string, handler Handler) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.handlers[eventName] = append(j.handlers[eventName], handler)
}

// GetStatus returns the current status token, or "" if none has been
// written yet.
func (j *Job) GetStatus(ctx context.Context) (string, error) {
	data, err := j.io.Read(ctx, jobmodel.PathStatus)
	if err != nil {
		return "", fmt.Errorf("client: read status: %w", err)
	}
	return string(data), nil
}

// GetProgress returns the latest single-line progress message, or "" if
// none has been written yet.
func (j *Job) GetProgress(ctx context.Context) (string, error) {
	data, err := j.io.Read(ctx, jobmodel.PathProgress)
	if err != nil {
		return "", fmt.Errorf("client: read progress: %w", err)
	}
	return string(data), nil
}

// GetProgressLog parses the progress_log JSON array. A malformed or absent
// log is tolerated and returns an empty slice rather than an error.
func (j *Job) GetProgressLog(ctx context.Context) ([]jobmodel.ProgressEntry, error) {
	data, err := j.io.Read(ctx, jobmodel.PathProgressLog)
	if err != nil {
		return nil, fmt.Errorf("client: read progress log: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []jobmodel.ProgressEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		j.logger.Warn("malformed progress log, treating as empty", zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

// Finished reports whether status has reached a terminal value.
func (j *Job) Finished(ctx context.Context) (bool, error) {
	status, err := j.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return jobmodel.Status(status).Terminal(), nil
}

// IsSuccess reports whether status equals SUCCESS.
func (j *Job) IsSuccess(ctx context.Context) (bool, error) {
	status, err := j.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return jobmodel.Status(status) == jobmodel.StatusSuccess, nil
}

// IsError reports whether status equals ERROR.
func (j *Job) IsError(ctx context.Context) (bool, error) {
	status, err := j.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return jobmodel.Status(status) == jobmodel.StatusError, nil
}

// GetOutput enumerates and reads every file under output/, keyed by path
// relative to the JobPrefix root.
func (j *Job) GetOutput(ctx context.Context) (map[string][]byte, error) {
	names, err := blobio.ListOutputs(ctx, j.io)
	if err != nil {
		return nil, fmt.Errorf("client: list outputs: %w", err)
	}
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := j.io.Read(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("client: read output %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// WaitOptions controls Wait's polling behavior.
type WaitOptions struct {
	Timeout        time.Duration // defaults to 3600s
	PollInterval   time.Duration // defaults to 3s
	RaiseOnTimeout bool          // if true, Wait returns ErrTimeout on timeout instead of (StatusUnknown, nil)
}

// Wait polls status (and progress) every PollInterval until a terminal
// status is observed or Timeout elapses. It returns the terminal status
// (SUCCESS or ERROR). On timeout it returns ErrTimeout if RaiseOnTimeout,
// else (StatusUnknown, nil).
//
// Handler panics and errors are never allowed to interrupt polling: they
// are caught and logged only.
func (j *Job) Wait(ctx context.Context, opts WaitOptions) (jobmodel.Status, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	deadline := time.Now().Add(opts.Timeout)
	var lastStatus, lastProgress string

	for {
		status, err := j.GetStatus(ctx)
		if err != nil {
			return StatusUnknown, err
		}
		if status != lastStatus {
			lastStatus = status
			j.emit(EventChangeStatus, status)
		}

		progress, err := j.GetProgress(ctx)
		if err != nil {
			return StatusUnknown, err
		}
		if progress != lastProgress {
			lastProgress = progress
			j.emit(EventChangeProgress, progress)
		}

		switch jobmodel.Status(status) {
		case jobmodel.StatusSuccess:
			return jobmodel.StatusSuccess, nil
		case jobmodel.StatusError:
			return jobmodel.StatusError, nil
		}

		if time.Now().After(deadline) {
			if opts.RaiseOnTimeout {
				return StatusUnknown, ErrTimeout
			}
			return StatusUnknown, nil
		}

		select {
		case <-ctx.Done():
			return StatusUnknown, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}
}

func (j *Job) emit(eventName, value string) {
	j.mu.Lock()
	handlers := append([]Handler(nil), j.handlers[eventName]...)
	j.mu.Unlock()

	for _, h := range handlers {
		j.safeCall(h, value)
	}
}

func (j *Job) safeCall(h Handler, value string) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("event handler panicked", zap.Any("recover", r))
		}
	}()
	h(value)
}
