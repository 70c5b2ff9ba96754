// Package worker is the in-container SDK a worker image links against: it
// reads args/stdin/input files from its JobPrefix and writes progress,
// outputs, and a terminal status back to it. A Worker always leaves a
// terminal status behind: closing one without an explicit Success/Error call
// records Success, and closing after a panic records Error with a formatted
// trace.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/mokemokechicken/spr-adbi/internal/blobio"
	"github.com/mokemokechicken/spr-adbi/internal/jobmodel"
)

// Worker is constructed from a process's argv: argv[0] is the JobPrefix
// URI, the remainder are the worker's own positional arguments.
type Worker struct {
	ctx       context.Context
	prefixURI string
	args      []string
	io        blobio.BlobIO

	mu          sync.Mutex
	finished    bool
	progressLog []jobmodel.ProgressEntry
}

// New builds a Worker from argv (typically os.Args[1:]). argv[0] must be
// the JobPrefix URI the dispatcher appended to the entry point.
func New(ctx context.Context, argv []string) (*Worker, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("worker: no arguments given, expected job prefix URI as argv[0]")
	}
	prefixURI := strings.TrimSuffix(argv[0], "/")

	io, err := blobio.New(prefixURI)
	if err != nil {
		return nil, fmt.Errorf("worker: construct blob backend: %w", err)
	}

	return &Worker{
		ctx:       ctx,
		prefixURI: prefixURI,
		args:      argv[1:],
		io:        io,
	}, nil
}

// Close implements the scope-exit guarantee: if neither Success nor Error
// has been called, it calls Success() when recovered is nil (clean return)
// or Error() with a formatted panic trace when recovered is non-nil. A
// recovered panic is re-raised after the Error write so the process still
// exits non-zero and the container run is reported as failed.
//
// Usage:
//
//	w, err := worker.New(ctx, os.Args[1:])
//	if err != nil { ... }
//	defer func() { w.Close(recover()) }()
func (w *Worker) Close(recovered any) {
	w.mu.Lock()
	finished := w.finished
	w.mu.Unlock()
	if finished {
		if recovered != nil {
			panic(recovered) // already finished explicitly; do not swallow the panic
		}
		return
	}

	if recovered == nil {
		_ = w.Success(nil, nil)
		return
	}
	trace := fmt.Sprintf("panic: %v\n%s", recovered, debug.Stack())
	_ = w.Error(trace, nil, nil)
	panic(recovered)
}

// Args returns the worker's own arguments: those passed on argv after the
// JobPrefix, or if none were given, the JSON array stored at "args".
func (w *Worker) Args() ([]string, error) {
	if len(w.args) > 0 {
		return w.args, nil
	}
	data, err := w.io.Read(w.ctx, jobmodel.PathArgs)
	if err != nil {
		return nil, fmt.Errorf("worker: read args: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var args []string
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("worker: unmarshal args: %w", err)
	}
	return args, nil
}

// Stdin returns the worker's input bytes: os.Stdin's contents when stdin is
// piped (not a tty), otherwise the bytes stored at "stdin".
func (w *Worker) Stdin() ([]byte, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("worker: read piped stdin: %w", err)
		}
		return data, nil
	}
	data, err := w.io.Read(w.ctx, jobmodel.PathStdin)
	if err != nil {
		return nil, fmt.Errorf("worker: read stdin blob: %w", err)
	}
	return data, nil
}

// Read returns the bytes at relpath (relative to the JobPrefix).
func (w *Worker) Read(relpath string) ([]byte, error) {
	data, err := w.io.Read(w.ctx, strings.TrimPrefix(relpath, "/"))
	if err != nil {
		return nil, fmt.Errorf("worker: read %s: %w", relpath, err)
	}
	return data, nil
}

// Write writes data to relpath (relative to the JobPrefix).
func (w *Worker) Write(relpath string, data []byte) error {
	if err := w.io.Write(w.ctx, strings.TrimPrefix(relpath, "/"), data); err != nil {
		return fmt.Errorf("worker: write %s: %w", relpath, err)
	}
	return nil
}

// WriteFile uploads the local file at localPath to relpath.
func (w *Worker) WriteFile(relpath, localPath string) error {
	if err := w.io.WriteFile(w.ctx, strings.TrimPrefix(relpath, "/"), localPath); err != nil {
		return fmt.Errorf("worker: write file %s: %w", relpath, err)
	}
	return nil
}

// SetProgress overwrites the single-line progress message and appends to
// the progress log.
func (w *Worker) SetProgress(message string) error {
	if err := w.Write(jobmodel.PathProgress, []byte(message)); err != nil {
		return err
	}
	return w.appendProgressLog(message)
}

func (w *Worker) appendProgressLog(message string) error {
	w.mu.Lock()
	w.progressLog = append(w.progressLog, jobmodel.ProgressEntry{Time: time.Now().Unix(), Message: message})
	data, err := json.Marshal(w.progressLog)
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("worker: marshal progress log: %w", err)
	}
	return w.Write(jobmodel.PathProgressLog, data)
}

// Success writes every entry of outputInfo/outputFileInfo under output/,
// then writes status=SUCCESS. Calling Success or Error a second time is a
// no-op beyond the first call.
func (w *Worker) Success(outputInfo map[string][]byte, outputFileInfo map[string]string) error {
	if w.alreadyFinished() {
		return nil
	}
	if err := w.writeOutputs(outputInfo, outputFileInfo); err != nil {
		return err
	}
	return w.finish(jobmodel.StatusSuccess)
}

// Error writes message to output/__error__.txt plus any other outputs, then
// writes status=ERROR.
func (w *Worker) Error(message string, outputInfo map[string][]byte, outputFileInfo map[string]string) error {
	if w.alreadyFinished() {
		return nil
	}
	merged := make(map[string][]byte, len(outputInfo)+1)
	for k, v := range outputInfo {
		merged[k] = v
	}
	merged["__error__.txt"] = []byte(message)
	if err := w.writeOutputs(merged, outputFileInfo); err != nil {
		return err
	}
	return w.finish(jobmodel.StatusError)
}

func (w *Worker) alreadyFinished() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.finished
}

func (w *Worker) finish(status jobmodel.Status) error {
	w.mu.Lock()
	w.finished = true
	w.mu.Unlock()
	if err := w.Write(jobmodel.PathStatus, []byte(status)); err != nil {
		return err
	}
	return nil
}

func (w *Worker) writeOutputs(outputInfo map[string][]byte, outputFileInfo map[string]string) error {
	for key, data := range outputInfo {
		if data == nil {
			continue
		}
		if err := w.Write(jobmodel.PathOutput(key), data); err != nil {
			return err
		}
	}
	for key, localPath := range outputFileInfo {
		if err := w.WriteFile(jobmodel.PathOutput(key), localPath); err != nil {
			return err
		}
	}
	return nil
}

// GetInputFilenames returns every path under input/, relative to the
// JobPrefix root.
func (w *Worker) GetInputFilenames() ([]string, error) {
	names, err := blobio.ListInputs(w.ctx, w.io)
	if err != nil {
		return nil, fmt.Errorf("worker: list inputs: %w", err)
	}
	return names, nil
}
