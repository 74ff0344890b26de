package work

import (
	"sync"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
)

// DiagnosticRing keeps the most recent connector diagnostics in a fixed-size
// ring. Safe for concurrent use.
type DiagnosticRing struct {
	mu    sync.Mutex
	buf   []evidence.ConnectorDiagnostic
	next  int
	count int
}

// NewDiagnosticRing creates a ring holding up to size entries.
func NewDiagnosticRing(size int) *DiagnosticRing {
	if size <= 0 {
		size = 100
	}
	return &DiagnosticRing{buf: make([]evidence.ConnectorDiagnostic, size)}
}

// Add records a diagnostic, evicting the oldest when full.
func (r *DiagnosticRing) Add(diag evidence.ConnectorDiagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = diag
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Snapshot returns the stored diagnostics, newest first.
func (r *DiagnosticRing) Snapshot() []evidence.ConnectorDiagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]evidence.ConnectorDiagnostic, 0, r.count)
	for i := 0; i < r.count; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of stored diagnostics.
func (r *DiagnosticRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
