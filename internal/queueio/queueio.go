// Package queueio provides a uniform message-queue interface over either a
// real SQS FIFO queue or an in-process FIFO used for local wiring and
// tests. The dispatcher receives jobmodel.Envelope messages through this
// interface and never talks to SQS directly.
package queueio

import "context"

// Handle is a single received message. Its lifecycle ends when Delete is
// called (the dispatcher has durably recorded the job's WILL_DEQUEUE
// status) or when the process exits without deleting it, in which case the
// message becomes visible again after its visibility timeout elapses.
type Handle interface {
	// Body returns the raw message body bytes.
	Body() []byte

	// Delete removes the message from the queue. It is only safe to call
	// once processing has reached a point where redelivery would be
	// redundant or handled idempotently downstream.
	Delete(ctx context.Context) error

	// ChangeVisibility updates how long before this message becomes
	// visible to other receivers again. A timeout of 0 makes it
	// immediately visible again, used to requeue work this host cannot
	// handle (e.g. an unresolved func_id) for another host to pick up.
	ChangeVisibility(ctx context.Context, timeoutSeconds int32) error
}

// QueueIO is the capability set every backend implements.
type QueueIO interface {
	// Receive long-polls for up to maxMessages messages, waiting up to
	// waitSeconds for at least one to arrive. It may return fewer than
	// maxMessages, including zero, if none arrive within the wait window.
	Receive(ctx context.Context, maxMessages int32, waitSeconds int32) ([]Handle, error)

	// Send enqueues body under the given FIFO group and deduplication ids.
	Send(ctx context.Context, body []byte, groupID, dedupID string) error
}
