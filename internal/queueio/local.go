package queueio

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process FIFO QueueIO, one queue per MessageGroupId, used
// for local development wiring and tests where running a real SQS queue
// would be overkill. It has no cross-process visibility and no persistence.
type Local struct {
	mu     sync.Mutex
	groups map[string][]*localMessage
	order  []string // group ids in first-seen order, the order Receive scans them in
}

type localMessage struct {
	body      []byte
	dedupID   string
	visibleAt time.Time
}

// NewLocal constructs an empty Local queue.
func NewLocal() *Local {
	return &Local{groups: make(map[string][]*localMessage)}
}

func (l *Local) Send(_ context.Context, body []byte, groupID, dedupID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, m := range l.groups[groupID] {
		if m.dedupID == dedupID {
			return nil // within-group dedup, mirroring FIFO dedup-id semantics
		}
	}
	if _, ok := l.groups[groupID]; !ok {
		l.order = append(l.order, groupID)
	}
	l.groups[groupID] = append(l.groups[groupID], &localMessage{body: body, dedupID: dedupID})
	return nil
}

// Receive returns up to maxMessages currently-visible messages, scanning
// groups in first-seen order from the first group on every call and taking
// each group's visible messages in FIFO order before moving to the next.
// If nothing is immediately available it re-checks every 50ms until
// waitSeconds have elapsed, rather than true long-polling.
func (l *Local) Receive(ctx context.Context, maxMessages int32, waitSeconds int32) ([]Handle, error) {
	deadline := time.Now().Add(time.Duration(waitSeconds) * time.Second)
	for {
		if handles := l.drain(maxMessages); len(handles) > 0 {
			return handles, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (l *Local) drain(maxMessages int32) []Handle {
	l.mu.Lock()
	defer l.mu.Unlock()

	var handles []Handle
	now := time.Now()
	for _, groupID := range l.order {
		queue := l.groups[groupID]
		for len(queue) > 0 && int32(len(handles)) < maxMessages {
			msg := queue[0]
			if msg.visibleAt.After(now) {
				break
			}
			queue = queue[1:]
			handles = append(handles, &localHandle{owner: l, groupID: groupID, msg: msg})
		}
		l.groups[groupID] = queue
		if int32(len(handles)) >= maxMessages {
			break
		}
	}
	return handles
}

type localHandle struct {
	owner   *Local
	groupID string
	msg     *localMessage
}

func (h *localHandle) Body() []byte { return h.msg.body }

func (h *localHandle) Delete(_ context.Context) error {
	return nil // already removed from the group's queue in drain()
}

func (h *localHandle) ChangeVisibility(_ context.Context, timeoutSeconds int32) error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	h.msg.visibleAt = time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	h.owner.groups[h.groupID] = append([]*localMessage{h.msg}, h.owner.groups[h.groupID]...)
	return nil
}

var _ QueueIO = (*Local)(nil)
var _ Handle = (*localHandle)(nil)
