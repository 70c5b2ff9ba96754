package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mokemokechicken/spr-adbi/internal/blobio"
	"github.com/mokemokechicken/spr-adbi/internal/container"
	"github.com/mokemokechicken/spr-adbi/internal/jobmodel"
	"github.com/mokemokechicken/spr-adbi/internal/queueio"
	"github.com/mokemokechicken/spr-adbi/internal/resolver"
)

// fakeManager is a scripted container.Manager: each call to Run consumes the
// next entry of results (or the last one, if Run is called more times than
// results has entries), and also writes a terminal status to the prefix the
// way a real worker running inside the container would.
type fakeManager struct {
	mu       sync.Mutex
	results  []bool // true = worker writes SUCCESS, false = worker writes ERROR
	runCount int32
	loginErr error
	pullErr  error
}

func (m *fakeManager) Login(_ context.Context, _ string) error { return m.loginErr }
func (m *fakeManager) Pull(_ context.Context, _ string) error  { return m.pullErr }

func (m *fakeManager) Run(ctx context.Context, _ string, argv []string, _ map[string]any) (container.RunResult, error) {
	n := atomic.AddInt32(&m.runCount, 1)
	m.mu.Lock()
	var ok bool
	if int(n)-1 < len(m.results) {
		ok = m.results[n-1]
	} else if len(m.results) > 0 {
		ok = m.results[len(m.results)-1]
	}
	m.mu.Unlock()

	prefixURI := argv[len(argv)-1]
	io, err := blobio.New(prefixURI)
	if err != nil {
		return container.RunResult{}, err
	}
	status := jobmodel.StatusSuccess
	if !ok {
		status = jobmodel.StatusError
	}
	if err := io.Write(ctx, jobmodel.PathStatus, []byte(status)); err != nil {
		return container.RunResult{}, err
	}
	if ok {
		_ = io.Write(ctx, jobmodel.PathOutput("result.txt"), []byte("done"))
	}

	return container.RunResult{Success: ok, Stdout: "stdout", Stderr: "stderr"}, nil
}

func newTestDispatcher(t *testing.T, res resolver.WorkerResolver, mgr container.Manager, cfg Config) (*Dispatcher, *queueio.Local) {
	t.Helper()
	q := queueio.NewLocal()
	d := New(q, res, mgr, NewMetrics(), cfg, zap.NewNop())
	return d, q
}

func enqueueEnvelope(t *testing.T, q *queueio.Local, funcID, prefixURI string) {
	t.Helper()
	env := jobmodel.Envelope{FuncID: funcID, PrefixURI: prefixURI}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), body, prefixURI, prefixURI))
}

func waitForStatus(t *testing.T, io blobio.BlobIO, want jobmodel.Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, err := io.Read(context.Background(), jobmodel.PathStatus)
		require.NoError(t, err)
		if jobmodel.Status(data) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("status never reached %q", want)
}

func TestDispatcherSucceedsOnFirstAttempt(t *testing.T) {
	prefix := t.TempDir()
	res := resolver.NewSingle("test.echo", jobmodel.WorkerInfo{ImageID: "img", EntryPoint: []string{"run"}})
	mgr := &fakeManager{results: []bool{true}}
	d, q := newTestDispatcher(t, res, mgr, Config{MaxWorkers: 2, MaxRetry: 1})

	enqueueEnvelope(t, q, "test.echo", prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go d.Watch(ctx) //nolint:errcheck

	io := blobio.NewLocalIO(prefix)
	waitForStatus(t, io, jobmodel.StatusSuccess, 400*time.Millisecond)

	data, err := io.Read(context.Background(), jobmodel.PathOutput("result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))

	runStatus, err := io.Read(context.Background(), "run-1/status")
	require.NoError(t, err)
	assert.Equal(t, string(jobmodel.StatusSuccess), string(runStatus))
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	prefix := t.TempDir()
	res := resolver.NewSingle("test.echo", jobmodel.WorkerInfo{ImageID: "img"})
	mgr := &fakeManager{results: []bool{false, true}}
	d, q := newTestDispatcher(t, res, mgr, Config{MaxWorkers: 1, MaxRetry: 2})

	enqueueEnvelope(t, q, "test.echo", prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go d.Watch(ctx) //nolint:errcheck

	io := blobio.NewLocalIO(prefix)
	waitForStatus(t, io, jobmodel.StatusSuccess, 400*time.Millisecond)

	run1, err := io.Read(context.Background(), "run-1/status")
	require.NoError(t, err)
	assert.Equal(t, string(jobmodel.StatusError), string(run1))

	run2, err := io.Read(context.Background(), "run-2/status")
	require.NoError(t, err)
	assert.Equal(t, string(jobmodel.StatusSuccess), string(run2))
}

func TestDispatcherExhaustsRetriesAndEndsInError(t *testing.T) {
	prefix := t.TempDir()
	res := resolver.NewSingle("test.echo", jobmodel.WorkerInfo{ImageID: "img"})
	mgr := &fakeManager{results: []bool{false, false}}
	d, q := newTestDispatcher(t, res, mgr, Config{MaxWorkers: 1, MaxRetry: 2})

	enqueueEnvelope(t, q, "test.echo", prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go d.Watch(ctx) //nolint:errcheck

	io := blobio.NewLocalIO(prefix)
	waitForStatus(t, io, jobmodel.StatusError, 400*time.Millisecond)
}

func TestDispatcherMalformedEnvelopeIsDeletedNotCrashed(t *testing.T) {
	res := resolver.NewSingle("test.echo", jobmodel.WorkerInfo{ImageID: "img"})
	mgr := &fakeManager{results: []bool{true}}
	d, q := newTestDispatcher(t, res, mgr, Config{MaxWorkers: 1, MaxRetry: 1})

	require.NoError(t, q.Send(context.Background(), []byte(`"not-a-list"`), "g", "d"))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := d.Watch(ctx)
	assert.NoError(t, err)

	handles, rerr := q.Receive(context.Background(), 10, 0)
	require.NoError(t, rerr)
	assert.Empty(t, handles, "malformed envelope must be removed from the queue")
}

func TestDispatcherUnresolvedFuncIDIsRequeuedNotWritten(t *testing.T) {
	prefix := t.TempDir()
	res := resolver.NewConstant(nil) // resolves nothing
	mgr := &fakeManager{results: []bool{true}}
	d, q := newTestDispatcher(t, res, mgr, Config{MaxWorkers: 1, MaxRetry: 1})

	enqueueEnvelope(t, q, "no.such", prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_ = d.Watch(ctx)

	io := blobio.NewLocalIO(prefix)
	data, err := io.Read(context.Background(), jobmodel.PathStatus)
	require.NoError(t, err)
	assert.Nil(t, data, "dispatcher must never write status for a func_id it cannot resolve")

	handles, err := q.Receive(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, handles, 1, "unresolved envelope must be returned to the queue, not dropped")
}

func TestDispatcherLoginFailureWritesError(t *testing.T) {
	prefix := t.TempDir()
	res := resolver.NewSingle("test.echo", jobmodel.WorkerInfo{ImageID: "img"})
	mgr := &fakeManager{loginErr: fmt.Errorf("registry unreachable")}
	d, q := newTestDispatcher(t, res, mgr, Config{MaxWorkers: 1, MaxRetry: 1})

	enqueueEnvelope(t, q, "test.echo", prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go d.Watch(ctx) //nolint:errcheck

	io := blobio.NewLocalIO(prefix)
	waitForStatus(t, io, jobmodel.StatusError, 150*time.Millisecond)
}

func TestCleanupWorkspacePreservesInputsAndClearsOutputs(t *testing.T) {
	prefix := t.TempDir()
	io := blobio.NewLocalIO(prefix)
	ctx := context.Background()

	require.NoError(t, io.Write(ctx, jobmodel.PathArgs, []byte(`["a"]`)))
	require.NoError(t, io.Write(ctx, jobmodel.PathStdin, []byte("in")))
	require.NoError(t, io.Write(ctx, jobmodel.PathInput("a.txt"), []byte("data")))
	require.NoError(t, io.Write(ctx, jobmodel.PathProgress, []byte("50%")))
	require.NoError(t, io.Write(ctx, jobmodel.PathOutput("r.txt"), []byte("stale")))

	d := &Dispatcher{logger: zap.NewNop()}
	require.NoError(t, d.cleanupWorkspace(ctx, io))

	progress, err := io.Read(ctx, jobmodel.PathProgress)
	require.NoError(t, err)
	assert.Nil(t, progress)

	outputs, err := blobio.ListOutputs(ctx, io)
	require.NoError(t, err)
	assert.Empty(t, outputs)

	args, err := io.Read(ctx, jobmodel.PathArgs)
	require.NoError(t, err)
	assert.Equal(t, `["a"]`, string(args))

	stdin, err := io.Read(ctx, jobmodel.PathStdin)
	require.NoError(t, err)
	assert.Equal(t, "in", string(stdin))

	input, err := io.Read(ctx, jobmodel.PathInput("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(input))
}

func TestDispatcherBackpressureLimitsActiveWorkers(t *testing.T) {
	const poolSize = 2
	blockCh := make(chan struct{})
	var started int32

	mgr := &blockingManager{blockCh: blockCh, started: &started}
	res := resolver.NewSingle("test.echo", jobmodel.WorkerInfo{ImageID: "img"})
	d, q := newTestDispatcher(t, res, mgr, Config{MaxWorkers: poolSize, MaxRetry: 1})

	for i := 0; i < poolSize+2; i++ {
		enqueueEnvelope(t, q, "test.echo", filepath.Join(t.TempDir(), fmt.Sprintf("job-%d", i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go d.Watch(ctx) //nolint:errcheck

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) && atomic.LoadInt32(&started) < poolSize {
		time.Sleep(2 * time.Millisecond)
	}
	assert.LessOrEqual(t, int(atomic.LoadInt32(&started)), poolSize,
		"no more than poolSize jobs may be running concurrently")
	close(blockCh)
}

// blockingManager simulates a long-running container so a test can observe
// the pool saturate at its configured size before letting work complete.
type blockingManager struct {
	blockCh chan struct{}
	started *int32
}

func (m *blockingManager) Login(_ context.Context, _ string) error { return nil }
func (m *blockingManager) Pull(_ context.Context, _ string) error  { return nil }

func (m *blockingManager) Run(ctx context.Context, _ string, argv []string, _ map[string]any) (container.RunResult, error) {
	atomic.AddInt32(m.started, 1)
	select {
	case <-m.blockCh:
	case <-ctx.Done():
	}

	prefixURI := argv[len(argv)-1]
	io, err := blobio.New(prefixURI)
	if err != nil {
		return container.RunResult{}, err
	}
	_ = io.Write(ctx, jobmodel.PathStatus, []byte(jobmodel.StatusSuccess))
	return container.RunResult{Success: true}, nil
}
