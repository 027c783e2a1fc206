// Package updatechecker runs a background pass over git-backed resources,
// comparing the locally materialized HEAD against the remote branch HEAD and
// flagging resources whose content has drifted out of date.
package updatechecker

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ctxpack/ctxpack/internal/materializer"
	"github.com/ctxpack/ctxpack/internal/observability"
	"github.com/ctxpack/ctxpack/internal/store"
)

// errHeadUnresolved marks a pass where either the local or remote HEAD
// could not be determined; logged but never surfaced to callers, since a
// missing HEAD is a normal transient state (network blip, shallow clone)
// rather than a checker bug.
var errHeadUnresolved = errors.New("updatechecker: local or remote head unresolved")

// defaultInterval is how often the background pass runs when Interval is
// left at its zero value.
const defaultInterval = 5 * time.Minute

// remoteHeadCache memoizes a remote branch's HEAD SHA, keyed by remote URL
// and branch, to cut down on repeated ls-remote round trips across
// resources that share a remote. Optional: Checker works with a nil cache.
type remoteHeadCache interface {
	Get(ctx context.Context, remoteURL, branch string) (sha string, ok bool)
	Set(ctx context.Context, remoteURL, branch, sha string, ttl time.Duration)
}

// Checker periodically resolves local/remote HEAD for every ready git
// resource and writes back drift state. A resource whose materialized
// directory no longer exists is skipped for that pass; one whose local or
// remote HEAD cannot be resolved is still written back, with the unresolved
// commit cleared and updateAvailable false. Failures are logged and
// swallowed rather than retried
// immediately, matching the fire-and-forget contract of the rest of the
// background passes in this service.
type Checker struct {
	Store        *store.Store
	Materializer *materializer.Materializer
	Logger       *observability.Logger
	Interval     time.Duration
	CacheTTL     time.Duration
	Cache        remoteHeadCache

	runningMu sync.Mutex
	isRunning bool
	stopChan  chan struct{}
}

// New creates a Checker with the given dependencies.
func New(st *store.Store, mat *materializer.Materializer, logger *observability.Logger) *Checker {
	return &Checker{Store: st, Materializer: mat, Logger: logger}
}

// Start launches the background ticker loop. Returns an error if already
// running. The loop stops when ctx is cancelled or Stop is called.
func (c *Checker) Start(ctx context.Context) error {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	if c.isRunning {
		return errors.New("updatechecker: already running")
	}
	c.isRunning = true
	c.stopChan = make(chan struct{})

	go c.loop(ctx)
	return nil
}

// Stop ends the background loop.
func (c *Checker) Stop() {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	if !c.isRunning {
		return
	}
	c.isRunning = false
	close(c.stopChan)
}

func (c *Checker) loop(ctx context.Context) {
	interval := c.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single pass over every ready git resource. Exposed
// separately from the ticker loop so it can be triggered synchronously
// (e.g. fire-and-forget after a query operation) without waiting for the
// next tick.
func (c *Checker) RunOnce(ctx context.Context) {
	resources, err := c.Store.ListResources(ctx, store.ListResourcesOptions{})
	if err != nil {
		if c.Logger != nil {
			c.Logger.ErrorContext(ctx, "updatechecker: list resources failed", "error", err)
		} else {
			log.Printf("updatechecker: list resources failed: %v", err)
		}
		return
	}

	for _, r := range resources {
		if r.Kind != store.KindGit || r.ContentStatus != store.ContentReady {
			continue
		}
		c.checkOne(ctx, r)
	}
}

func (c *Checker) checkOne(ctx context.Context, r *store.Resource) {
	dir := c.Materializer.Dir(r.ID)
	if !dirExists(dir) {
		return
	}

	localHead := c.Materializer.HeadCommit(ctx, dir)
	remoteHead := c.resolveRemoteHead(ctx, r)

	now := time.Now()
	r.LastLocalCommit = localHead
	r.LastRemoteCommit = remoteHead
	r.LastUpdateCheckAt = &now
	r.UpdateAvailable = localHead != nil && remoteHead != nil && *localHead != *remoteHead

	var logErr error
	if localHead == nil || remoteHead == nil {
		logErr = errHeadUnresolved
	}

	if err := c.Store.UpdateResource(ctx, r); err != nil {
		if c.Logger != nil {
			c.Logger.ErrorContext(ctx, "updatechecker: write back failed", "resourceId", r.ID, "error", err)
		}
		return
	}

	if c.Logger != nil {
		c.Logger.LogUpdateCheck(ctx, r.ID, r.UpdateAvailable, logErr)
	}
}

func (c *Checker) resolveRemoteHead(ctx context.Context, r *store.Resource) *string {
	if r.RemoteURL == nil {
		return nil
	}
	branch := ""
	if r.Branch != nil {
		branch = *r.Branch
	}

	if c.Cache != nil {
		if sha, ok := c.Cache.Get(ctx, *r.RemoteURL, branch); ok {
			return &sha
		}
	}

	sha := c.Materializer.RemoteHead(ctx, *r.RemoteURL, branch)
	if sha != nil && c.Cache != nil {
		c.Cache.Set(ctx, *r.RemoteURL, branch, *sha, c.cacheTTL())
	}
	return sha
}

func (c *Checker) cacheTTL() time.Duration {
	if c.CacheTTL > 0 {
		return c.CacheTTL
	}
	return defaultInterval
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
