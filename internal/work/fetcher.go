// Package work runs connector fetches for a monitoring cycle: bounded
// parallelism, per-connector timeouts, and per-connector diagnostics.
package work

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reliefwatch/reliefwatch/internal/evidence"
	"github.com/reliefwatch/reliefwatch/internal/logging"
)

// Fetcher fetches all connectors in parallel. A connector that fails or
// times out degrades the cycle, it never aborts it.
type Fetcher struct {
	connectors []evidence.Connector
	timeout    time.Duration
	maxWorkers int
	history    *DiagnosticRing
}

// NewFetcher creates a fetcher over a fixed connector set.
func NewFetcher(connectors []evidence.Connector, timeout time.Duration, maxWorkers int) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxWorkers <= 0 {
		maxWorkers = 5
	}
	return &Fetcher{
		connectors: connectors,
		timeout:    timeout,
		maxWorkers: maxWorkers,
		history:    NewDiagnosticRing(100),
	}
}

// FetchAll fetches every connector in parallel and returns the normalized
// items plus one diagnostic per connector. Malformed items are skipped and
// recorded as warnings.
func (f *Fetcher) FetchAll(ctx context.Context) ([]evidence.Item, []evidence.ConnectorDiagnostic) {
	var g errgroup.Group
	g.SetLimit(f.maxWorkers)

	var mu sync.Mutex
	var items []evidence.Item
	diagnostics := make([]evidence.ConnectorDiagnostic, len(f.connectors))

	for i, conn := range f.connectors {
		i, conn := i, conn
		g.Go(func() error {
			if ctx.Err() != nil {
				diagnostics[i] = evidence.ConnectorDiagnostic{Connector: conn.Name()}
				return nil
			}

			fetched, diag := f.fetchOne(ctx, conn)

			mu.Lock()
			items = append(items, fetched...)
			mu.Unlock()
			diagnostics[i] = diag
			return nil // errors reported per-connector, never fail the group
		})
	}

	_ = g.Wait()

	for _, diag := range diagnostics {
		f.history.Add(diag)
	}
	return items, diagnostics
}

// fetchOne fetches a single connector with timeout and normalizes its items.
func (f *Fetcher) fetchOne(ctx context.Context, conn evidence.Connector) ([]evidence.Item, evidence.ConnectorDiagnostic) {
	diag := evidence.ConnectorDiagnostic{
		Connector: conn.Name(),
		Attempted: true,
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	raw, err := conn.Fetch(fetchCtx)
	if err != nil {
		diag.Failed = true
		diag.Errors = append(diag.Errors, err.Error())
		logging.Warn("connector fetch failed",
			"connector", conn.Name(),
			"error", err,
			"duration", time.Since(start))
		return nil, diag
	}

	diag.Healthy = true
	diag.Fetched = len(raw)

	var items []evidence.Item
	for _, item := range raw {
		item.Connector = conn.Name()
		item.Tier = conn.Tier()
		if item.FetchedAt.IsZero() {
			item.FetchedAt = time.Now()
		}

		normalized, err := evidence.Normalize(item)
		if err != nil {
			diag.Warnings = append(diag.Warnings, err.Error())
			continue
		}
		items = append(items, normalized)
	}
	diag.Matched = len(items)

	logging.Debug("connector fetch complete",
		"connector", conn.Name(),
		"fetched", diag.Fetched,
		"kept", diag.Matched,
		"duration", time.Since(start))
	return items, diag
}

// History returns recent connector diagnostics, newest first.
func (f *Fetcher) History() []evidence.ConnectorDiagnostic {
	return f.history.Snapshot()
}
