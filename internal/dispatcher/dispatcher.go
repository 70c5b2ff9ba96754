// Package dispatcher implements the long-running host process that pulls
// envelopes off a queue, resolves their func_id to a container image, and
// runs that image to completion under a bounded worker pool, writing status
// and per-attempt audit files to the job's blob prefix as it goes.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mokemokechicken/spr-adbi/internal/blobio"
	"github.com/mokemokechicken/spr-adbi/internal/container"
	"github.com/mokemokechicken/spr-adbi/internal/jobmodel"
	"github.com/mokemokechicken/spr-adbi/internal/queueio"
	"github.com/mokemokechicken/spr-adbi/internal/resolver"
)

// unresolvedRequeueDelay is how long handleOne sleeps after requeuing a
// message this host could not resolve, giving another host a chance to pick
// it up before this one asks for more work.
const unresolvedRequeueDelay = 5 * time.Second

// receiveErrorDelay is how long the receive loop sleeps after a failed
// Receive before trying again, so a persistent queue outage does not spin.
const receiveErrorDelay = 5 * time.Second

// Config controls dispatcher behavior beyond the resolver and I/O backends.
// MaxWorkers, MaxRetry and AWSRegion are sourced from environment variables
// by internal/config; ReceiveWait has no environment variable and defaults
// to 20 in New.
type Config struct {
	MaxWorkers  int
	MaxRetry    int
	ReceiveWait int32 // seconds, SQS WaitTimeSeconds
	AWSRegion   string
}

// Dispatcher owns the receive loop and the bounded pool of in-flight jobs.
type Dispatcher struct {
	queue    queueio.QueueIO
	resolver resolver.WorkerResolver
	manager  container.Manager
	metrics  *Metrics
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Dispatcher. manager is the container runtime used to run
// every resolved worker image.
func New(queue queueio.QueueIO, res resolver.WorkerResolver, manager container.Manager, metrics *Metrics, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 1
	}
	if cfg.ReceiveWait <= 0 {
		cfg.ReceiveWait = 20
	}
	return &Dispatcher{
		queue:    queue,
		resolver: res,
		manager:  manager,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger.Named("dispatcher"),
	}
}

// Watch runs the receive loop until ctx is cancelled. Each accepted job is
// submitted to a bounded errgroup pool sized to cfg.MaxWorkers — Watch
// naturally backs off asking for new work once the pool is full, because
// the next Receive call only happens after the current batch's submissions
// return a free slot. Once ctx is cancelled Watch stops receiving and waits
// for in-flight jobs to finish; their context is not cancelled with ctx.
func (d *Dispatcher) Watch(ctx context.Context) error {
	pool, poolCtx := errgroup.WithContext(context.WithoutCancel(ctx))
	pool.SetLimit(d.cfg.MaxWorkers)

	for {
		select {
		case <-ctx.Done():
			return pool.Wait()
		default:
		}

		handles, err := d.queue.Receive(ctx, 1, d.cfg.ReceiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return pool.Wait()
			}
			d.logger.Error("receive failed", zap.Error(err))
			select {
			case <-time.After(receiveErrorDelay):
			case <-ctx.Done():
			}
			continue
		}
		if len(handles) == 0 {
			continue
		}

		for _, h := range handles {
			if err := d.handleOne(ctx, poolCtx, pool, h); err != nil {
				return err
			}
		}
	}
}

// handleOne validates and resolves a single received message, then either
// requeues it (unresolved func_id), drops it (malformed), or submits it to
// the pool for execution.
func (d *Dispatcher) handleOne(ctx context.Context, poolCtx context.Context, pool *errgroup.Group, h queueio.Handle) error {
	var env jobmodel.Envelope
	if err := json.Unmarshal(h.Body(), &env); err != nil {
		d.logger.Warn("dropping malformed envelope", zap.Error(err), zap.ByteString("body", h.Body()))
		if delErr := h.Delete(ctx); delErr != nil {
			d.logger.Error("failed to delete malformed envelope", zap.Error(delErr))
		}
		return nil
	}

	d.metrics.jobsReceived.WithLabelValues(env.FuncID).Inc()

	info, ok := d.resolver.Resolve(env.FuncID)
	if !ok {
		d.logger.Info("unresolved func_id, requeuing", zap.String("func_id", env.FuncID))
		d.metrics.jobsRequeued.Inc()
		if err := h.ChangeVisibility(ctx, 0); err != nil {
			d.logger.Error("failed to requeue unresolved message", zap.Error(err))
		}
		select {
		case <-time.After(unresolvedRequeueDelay):
		case <-ctx.Done():
		}
		return nil
	}

	d.metrics.activeWorkers.Inc()
	pool.Go(func() error {
		defer d.metrics.activeWorkers.Dec()
		d.run(poolCtx, h, env, info)
		return nil
	})
	return nil
}

// run executes one resolved job: blob-store bookkeeping, status
// transitions, queue deletion, container pull and run, retries.
func (d *Dispatcher) run(ctx context.Context, h queueio.Handle, env jobmodel.Envelope, info jobmodel.WorkerInfo) {
	log := d.logger.With(zap.String("func_id", env.FuncID), zap.String("prefix", env.PrefixURI))

	io, err := blobio.New(env.PrefixURI)
	if err != nil {
		log.Error("failed to construct blob backend", zap.Error(err))
		return
	}

	if err := io.Write(ctx, jobmodel.PathStatus, []byte(jobmodel.StatusWillDequeue)); err != nil {
		log.Error("failed to write WILL_DEQUEUE status", zap.Error(err))
		return
	}
	if err := h.Delete(ctx); err != nil {
		log.Error("failed to delete queue message", zap.Error(err))
		return
	}
	if err := io.Write(ctx, jobmodel.PathStatus, []byte(jobmodel.StatusDequeued)); err != nil {
		log.Error("failed to write DEQUEUED status", zap.Error(err))
		return
	}

	if err := d.manager.Login(ctx, info.ImageID); err != nil {
		log.Error("registry login failed", zap.Error(err))
		d.setStatus(ctx, io, jobmodel.StatusError)
		d.metrics.jobsCompleted.WithLabelValues(env.FuncID, string(jobmodel.StatusError)).Inc()
		return
	}
	if err := d.manager.Pull(ctx, info.ImageID); err != nil {
		log.Error("image pull failed", zap.Error(err))
		d.setStatus(ctx, io, jobmodel.StatusError)
		d.metrics.jobsCompleted.WithLabelValues(env.FuncID, string(jobmodel.StatusError)).Inc()
		return
	}

	success := false
	for attempt := 1; attempt <= d.cfg.MaxRetry; attempt++ {
		if attempt > 1 {
			log.Info("retrying worker", zap.Int("attempt", attempt))
		}
		if err := d.cleanupWorkspace(ctx, io); err != nil {
			log.Warn("workspace cleanup failed", zap.Error(err))
		}
		success = d.attempt(ctx, log, io, env.PrefixURI, info, attempt)
		if success {
			log.Info("job succeeded")
			break
		}
		d.setStatus(ctx, io, jobmodel.StatusError)
	}

	finalStatus := jobmodel.StatusSuccess
	if !success {
		finalStatus = jobmodel.StatusError
		log.Warn("job failed after all retries", zap.Int("max_retry", d.cfg.MaxRetry))
	}
	d.metrics.jobsCompleted.WithLabelValues(env.FuncID, string(finalStatus)).Inc()
}

// cleanupWorkspace removes a stale progress marker and any partial outputs
// left behind by a previous attempt, so a retry starts from a clean state.
func (d *Dispatcher) cleanupWorkspace(ctx context.Context, io blobio.BlobIO) error {
	names, err := io.List(ctx, "")
	if err != nil {
		return fmt.Errorf("list workspace: %w", err)
	}
	for _, name := range names {
		if name == jobmodel.PathProgress || strings.HasPrefix(name, jobmodel.OutputDir+"/") {
			if err := io.Delete(ctx, name); err != nil {
				return fmt.Errorf("delete %s: %w", name, err)
			}
		}
	}
	return nil
}

// attempt runs the container once and writes the per-attempt audit files
// under run-{attempt}/. It returns whether the container reported success.
func (d *Dispatcher) attempt(ctx context.Context, log *zap.Logger, io blobio.BlobIO, prefixURI string, info jobmodel.WorkerInfo, attemptNum int) bool {
	runDir := jobmodel.RunDir(attemptNum)
	startTime := time.Now()
	_ = io.Write(ctx, runDir+"/start_time", []byte(startTime.Format(time.RFC3339)))

	d.setStatus(ctx, io, jobmodel.StatusRunning)

	argv := append(append([]string{}, info.EntryPoint...), prefixURI)
	result, err := d.manager.Run(ctx, info.ImageID, argv, info.RuntimeConfig)

	ok := false
	stdout, stderr := result.Stdout, result.Stderr
	switch {
	case err != nil:
		log.Error("container runtime error", zap.Error(err))
		stderr = err.Error()
	case result.Message != "":
		log.Warn("container run failed before completion", zap.String("message", result.Message))
		stderr = result.Message
	default:
		ok = result.Success
		if stderr != "" {
			log.Warn(stderr)
		}
	}

	_ = io.Write(ctx, runDir+"/stdout", []byte(stdout))
	_ = io.Write(ctx, runDir+"/stderr", []byte(stderr))
	_ = io.Write(ctx, runDir+"/end_time", []byte(time.Now().Format(time.RFC3339)))

	status, _ := io.Read(ctx, jobmodel.PathStatus)
	_ = io.Write(ctx, runDir+"/status", status)

	return ok
}

func (d *Dispatcher) setStatus(ctx context.Context, io blobio.BlobIO, status jobmodel.Status) {
	if err := io.Write(ctx, jobmodel.PathStatus, []byte(status)); err != nil {
		d.logger.Error("failed to write status", zap.String("status", string(status)), zap.Error(err))
	}
}
