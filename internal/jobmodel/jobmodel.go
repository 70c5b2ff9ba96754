// Package jobmodel defines the shared data shapes and path conventions for
// the job-dispatch protocol: the status tokens, the queue envelope, worker
// resolution results, and the canonical layout of files under a JobPrefix.
// It is imported by the client, dispatcher, worker and resolver packages so
// that none of them hand-rolls a path string or a status literal.
package jobmodel

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is one of the five literal tokens written to the "status" file
// under a JobPrefix. Values are compared byte-for-byte, case-sensitive.
type Status string

const (
	StatusWillDequeue Status = "WILL_DEQUEUE"
	StatusDequeued    Status = "DEQUEUED"
	StatusRunning     Status = "RUNNING"
	StatusSuccess     Status = "SUCCESS"
	StatusError       Status = "ERROR"
)

// Terminal reports whether s is one of the two terminal status tokens.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Canonical relative paths under a JobPrefix.
const (
	PathArgs        = "args"
	PathStdin       = "stdin"
	PathProgress    = "progress"
	PathProgressLog = "progress_log"
	PathStatus      = "status"
	InputDir        = "input"
	OutputDir       = "output"
	OutputError     = "output/__error__.txt"
)

// PathInput returns the path of a client-supplied input file relative to
// the JobPrefix root.
func PathInput(relpath string) string {
	return InputDir + "/" + strings.TrimPrefix(relpath, "/")
}

// PathOutput returns the path of a worker-produced output file relative to
// the JobPrefix root.
func PathOutput(relpath string) string {
	return OutputDir + "/" + strings.TrimPrefix(relpath, "/")
}

// RunDir returns the per-attempt audit directory name for attempt k (1-based).
func RunDir(k int) string {
	return fmt.Sprintf("run-%d", k)
}

// ProgressEntry is one element of the progress_log JSON array.
type ProgressEntry struct {
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

// WorkerInfo is the result of resolving a func_id: which container image to
// run, the argv prefix to run it with, optional container-runtime config,
// and free-form tags.
type WorkerInfo struct {
	ImageID       string         `json:"image_id"`
	EntryPoint    []string       `json:"entry_point"`
	RuntimeConfig map[string]any `json:"runtime_config,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

// Envelope is the two-element queue message body: [func_id, prefix_uri].
// It marshals and unmarshals as a plain JSON array rather than an object so
// that it matches the wire format other language implementations produce.
type Envelope struct {
	FuncID    string
	PrefixURI string
}

// MarshalJSON renders the envelope as ["func_id", "prefix_uri"].
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.FuncID, e.PrefixURI})
}

// UnmarshalJSON parses a two-element JSON array. Any other shape — wrong
// length, non-array, non-string elements — is rejected as malformed so the
// caller can treat the message as unparseable and drop it from the queue.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("jobmodel: envelope is not a JSON array: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("jobmodel: envelope must have exactly 2 elements, got %d", len(raw))
	}
	var funcID, prefixURI string
	if err := json.Unmarshal(raw[0], &funcID); err != nil {
		return fmt.Errorf("jobmodel: envelope[0] (func_id) must be a string: %w", err)
	}
	if err := json.Unmarshal(raw[1], &prefixURI); err != nil {
		return fmt.Errorf("jobmodel: envelope[1] (prefix_uri) must be a string: %w", err)
	}
	e.FuncID = funcID
	e.PrefixURI = prefixURI
	return nil
}

// processIDZone is the fixed timezone used to render process-id timestamps.
// A fixed zone (rather than the host's local zone) keeps ordering stable
// across dispatcher hosts in different regions.
var processIDZone = mustLoadLocation("Asia/Tokyo")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// time/tzdata is not linked in; fall back to a fixed 9-hour offset
		// (JST has no DST) so process ids remain well-formed.
		return time.FixedZone(name, 9*60*60)
	}
	return loc
}

// NewProcessID renders "{timestamp}-{func_id}-{random}": the timestamp is
// rendered to second precision in a fixed timezone for stable cross-host
// ordering, and random is a 128-bit id rendered as lowercase hex.
func NewProcessID(funcID string, now time.Time) (string, error) {
	randBytes := make([]byte, 16)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("jobmodel: failed to generate random id: %w", err)
	}
	ts := now.In(processIDZone).Format("20060102T150405")
	return fmt.Sprintf("%s-%s-%s", ts, funcID, hex.EncodeToString(randBytes)), nil
}
