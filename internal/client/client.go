// Package client lets callers enqueue named function invocations and poll
// the resulting Job for status, progress, and output.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mokemokechicken/spr-adbi/internal/blobio"
	"github.com/mokemokechicken/spr-adbi/internal/jobmodel"
	"github.com/mokemokechicken/spr-adbi/internal/queueio"
)

// Client materializes job inputs under a fresh JobPrefix and enqueues the
// envelope that tells a dispatcher to run them.
type Client struct {
	baseURI string
	queue   queueio.QueueIO
	logger  *zap.Logger
}

// New constructs a Client rooted at baseURI (local path or s3:// URI) and
// backed by queue for envelope delivery.
func New(baseURI string, queue queueio.QueueIO, logger *zap.Logger) *Client {
	return &Client{baseURI: baseURI, queue: queue, logger: logger.Named("client")}
}

// RequestOptions carries the optional pieces of a Request call.
type RequestOptions struct {
	Args          []string
	Stdin         []byte
	InputInfo     map[string][]byte // written under input/<key>
	InputFileInfo map[string]string // key -> local file path, uploaded under input/<key>
}

// Request materializes args/stdin/inputs under a new JobPrefix, enqueues the
// envelope, and returns a Job bound to that prefix.
func (c *Client) Request(ctx context.Context, funcID string, opts RequestOptions) (*Job, error) {
	processID, err := jobmodel.NewProcessID(funcID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("client: generate process id: %w", err)
	}
	prefixURI := c.baseURI + "/" + processID

	io, err := blobio.New(prefixURI)
	if err != nil {
		return nil, fmt.Errorf("client: construct blob backend: %w", err)
	}

	if len(opts.Args) > 0 {
		data, err := json.Marshal(opts.Args)
		if err != nil {
			return nil, fmt.Errorf("client: marshal args: %w", err)
		}
		if err := io.Write(ctx, jobmodel.PathArgs, data); err != nil {
			return nil, fmt.Errorf("client: write args: %w", err)
		}
	}
	if opts.Stdin != nil {
		if err := io.Write(ctx, jobmodel.PathStdin, opts.Stdin); err != nil {
			return nil, fmt.Errorf("client: write stdin: %w", err)
		}
	}
	for key, data := range opts.InputInfo {
		if err := io.Write(ctx, jobmodel.PathInput(key), data); err != nil {
			return nil, fmt.Errorf("client: write input %s: %w", key, err)
		}
	}
	for key, localPath := range opts.InputFileInfo {
		if err := io.WriteFile(ctx, jobmodel.PathInput(key), localPath); err != nil {
			return nil, fmt.Errorf("client: upload input file %s: %w", key, err)
		}
	}

	envelope := jobmodel.Envelope{FuncID: funcID, PrefixURI: prefixURI}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("client: marshal envelope: %w", err)
	}
	if err := c.queue.Send(ctx, body, processID, processID); err != nil {
		return nil, fmt.Errorf("client: enqueue envelope: %w", err)
	}

	c.logger.Info("job requested", zap.String("func_id", funcID), zap.String("prefix", prefixURI))
	return newJob(prefixURI, io, c.logger), nil
}
