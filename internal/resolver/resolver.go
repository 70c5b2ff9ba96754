// Package resolver maps a func_id to the WorkerInfo describing how to run
// it, or reports that this host does not know the func_id at all.
package resolver

import "github.com/mokemokechicken/spr-adbi/internal/jobmodel"

// WorkerResolver is a pure lookup: no side effects, no I/O. The dispatcher
// calls it once per received envelope before doing anything else.
type WorkerResolver interface {
	// Resolve returns the WorkerInfo for funcID and ok=true if this host
	// knows how to run it, or ok=false if it does not — the dispatcher
	// treats ok=false as "not my work" and requeues the message for
	// another host rather than erroring the job.
	Resolve(funcID string) (info jobmodel.WorkerInfo, ok bool)
}

// Constant is a WorkerResolver backed by a fixed, immutable map — the
// dispatcher binary is launched already knowing the single image/entrypoint
// it serves, so no dynamic registry lookup is needed.
type Constant struct {
	workers map[string]jobmodel.WorkerInfo
}

// NewConstant builds a Constant resolver from a fixed set of known workers.
func NewConstant(workers map[string]jobmodel.WorkerInfo) *Constant {
	copied := make(map[string]jobmodel.WorkerInfo, len(workers))
	for k, v := range workers {
		copied[k] = v
	}
	return &Constant{workers: copied}
}

// NewSingle builds a Constant resolver serving exactly one func_id, the
// common case for a dispatcher binary launched with a single image and
// entry point on its command line.
func NewSingle(funcID string, info jobmodel.WorkerInfo) *Constant {
	return NewConstant(map[string]jobmodel.WorkerInfo{funcID: info})
}

func (c *Constant) Resolve(funcID string) (jobmodel.WorkerInfo, bool) {
	info, ok := c.workers[funcID]
	return info, ok
}

var _ WorkerResolver = (*Constant)(nil)
