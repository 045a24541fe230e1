package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/core-tools/hsu-devlauncher/pkg/errors"
	"github.com/core-tools/hsu-devlauncher/pkg/logging"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 20 * time.Millisecond

// Mutation edits the entries in place. Returning an error discards the edit.
type Mutation func(entries Entries) error

// Registry serializes every load-mutate-save cycle through one goroutine.
// Each cycle also holds an advisory file lock, so separate launcher
// processes sharing the same registry file do not interleave either.
type Registry struct {
	store  Store
	lock   *flock.Flock
	logger logging.Logger

	requests  chan request
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type request struct {
	ctx    context.Context
	mutate Mutation
	reply  chan response
}

type response struct {
	entries Entries
	err     error
}

// New starts the registry goroutine. An empty lockPath disables file locking.
func New(store Store, lockPath string, logger logging.Logger) *Registry {
	r := &Registry{
		store:    store,
		logger:   logger,
		requests: make(chan request),
		stopChan: make(chan struct{}),
	}
	if lockPath != "" {
		if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
			logger.Warnf("Failed to create registry lock directory, lock: %s, error: %v", lockPath, err)
		}
		r.lock = flock.New(lockPath)
	}

	r.wg.Add(1)
	go r.loop()

	return r
}

// Update applies mutate to the current entries and saves the result.
// It returns the saved entries.
func (r *Registry) Update(ctx context.Context, mutate Mutation) (Entries, error) {
	return r.submit(ctx, mutate)
}

// Snapshot returns a copy of the current entries
func (r *Registry) Snapshot(ctx context.Context) (Entries, error) {
	return r.submit(ctx, nil)
}

// Close stops the registry goroutine. Pending callers receive an error.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.stopChan)
		r.wg.Wait()
	})
}

func (r *Registry) submit(ctx context.Context, mutate Mutation) (Entries, error) {
	req := request{
		ctx:    ctx,
		mutate: mutate,
		reply:  make(chan response, 1),
	}

	select {
	case r.requests <- req:
	case <-r.stopChan:
		return nil, errors.NewInternalError("registry is closed", nil)
	case <-ctx.Done():
		return nil, errors.NewCancelledError("registry request cancelled", ctx.Err())
	}

	select {
	case resp := <-req.reply:
		return resp.entries, resp.err
	case <-ctx.Done():
		return nil, errors.NewCancelledError("registry request cancelled", ctx.Err())
	}
}

func (r *Registry) loop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			r.logger.Debugf("Registry loop stopped")
			return
		case req := <-r.requests:
			if req.ctx.Err() != nil {
				req.reply <- response{err: errors.NewCancelledError("registry request cancelled", req.ctx.Err())}
				continue
			}
			entries, err := r.process(req)
			req.reply <- response{entries: entries, err: err}
		}
	}
}

func (r *Registry) process(req request) (Entries, error) {
	unlock, err := r.acquire(req.ctx, req.mutate == nil)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := r.store.Load()
	if err != nil {
		r.logger.Errorf("Failed to load registry, error: %v", err)
		return nil, err
	}

	if req.mutate == nil {
		return entries, nil
	}

	working := entries.Clone()
	if err := req.mutate(working); err != nil {
		return nil, err
	}

	if err := r.store.Save(working); err != nil {
		r.logger.Errorf("Failed to save registry, error: %v", err)
		return nil, err
	}

	r.logger.Debugf("Registry saved, entries: %d", len(working))
	return working.Clone(), nil
}

func (r *Registry) acquire(ctx context.Context, shared bool) (func(), error) {
	if r.lock == nil {
		return func() {}, nil
	}

	var locked bool
	var err error
	if shared {
		locked, err = r.lock.TryRLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = r.lock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelledError("waiting for registry lock", err).WithContext("lock", r.lock.Path())
		}
		return nil, errors.NewIOError("failed to lock registry", err).WithContext("lock", r.lock.Path())
	}
	if !locked {
		return nil, errors.NewTimeoutError("registry lock not acquired", nil).WithContext("lock", r.lock.Path())
	}

	return func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warnf("Failed to unlock registry, error: %v", err)
		}
	}, nil
}
