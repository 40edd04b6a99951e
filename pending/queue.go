// Package pending implements the durable on-disk FIFO that holds requests
// whose execution window has not yet opened, and the dispatcher that
// drains it, per §4.H/§4.I. It is grounded on the original
// `rmi/store.py`'s `PendingQueue`/`PendingThread`.
package pending

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.bryk.io/rmi/document"
	"go.bryk.io/rmi/errors"
	xlog "go.bryk.io/rmi/log"
	"go.bryk.io/rmi/metrics"
	"go.bryk.io/rmi/tracker"
	"go.bryk.io/rmi/window"
)

// ErrUnknownCommit is returned by Commit when sn was never handed out by
// Get (or was already committed). Callers should treat it as non-fatal:
// the commit is idempotent from the caller's perspective.
var ErrUnknownCommit = errors.New("pending: unknown or already-committed serial number")

// slot is an in-memory projection of one on-disk entry.
type slot struct {
	env   *document.Envelope
	ctime time.Time
}

// Queue is a thread-safe, crash-safe, on-disk FIFO of deferred envelopes.
// One Queue instance owns one ROOT directory; construct it once at
// startup and inject it into the consumer and dispatcher (§9 — explicit
// service, not a singleton).
type Queue struct {
	root    string
	tracker *tracker.Tracker
	log     xlog.Logger
	metrics *metrics.Collector

	mu          sync.Mutex
	pending     []slot
	uncommitted map[string]*document.Envelope
	signal      chan struct{}
}

// New creates root if absent, loads any existing entries (§3 crash
// recovery invariant), and returns a ready-to-use Queue.
func New(root string, tr *tracker.Tracker, log xlog.Logger, mc *metrics.Collector) (*Queue, error) {
	if log == nil {
		log = xlog.Discard()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "create pending root")
	}
	q := &Queue{
		root:        root,
		tracker:     tr,
		log:         log,
		metrics:     mc,
		uncommitted: map[string]*document.Envelope{},
		signal:      make(chan struct{}, 1),
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) path(sn string) string {
	return filepath.Join(q.root, sn)
}

// load rebuilds `pending` from ROOT on startup. Every file that fails to
// decode is unlinked and skipped (§3, scenario S5); entries that were
// uncommitted at crash time are files that were never unlinked, so they
// reappear here automatically, guaranteeing at-least-once dispatch (§8
// invariant 2).
func (q *Queue) load() error {
	entries, err := os.ReadDir(q.root)
	if err != nil {
		return errors.Wrap(err, "read pending root")
	}

	var loaded []slot
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		p := filepath.Join(q.root, de.Name())
		raw, err := os.ReadFile(p) //nolint:gosec // path is joined from a trusted root
		if err != nil {
			q.log.Warningf("pending: failed to read %s, purging: %v", de.Name(), err)
			_ = os.Remove(p)
			continue
		}
		env, err := document.Load(raw)
		if err != nil {
			q.log.Warningf("pending: corrupt entry %s, purging: %v", de.Name(), err)
			_ = os.Remove(p)
			continue
		}
		info, err := de.Info()
		if err != nil {
			q.log.Warningf("pending: failed to stat %s, purging: %v", de.Name(), err)
			_ = os.Remove(p)
			continue
		}
		loaded = append(loaded, slot{env: env, ctime: info.ModTime()})
		q.tracker.Add(env.SN, env.Any)
	}
	sortByCtime(loaded)

	q.mu.Lock()
	q.pending = loaded
	q.mu.Unlock()
	q.reportDepth()
	return nil
}

func sortByCtime(s []slot) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].ctime.Before(s[j].ctime) })
}

// Add stamps envelope with `ts`/`url`, writes it to ROOT/{sn} (write then
// fsync), registers it with the tracker, and makes it visible to Get.
func (q *Queue) Add(url string, env *document.Envelope) error {
	env.Stamp(url, time.Now())
	data, err := env.Dump()
	if err != nil {
		return errors.Wrap(err, "encode pending entry")
	}

	f, err := os.OpenFile(q.path(env.SN), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return errors.Wrap(err, "create pending entry")
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write pending entry")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "fsync pending entry")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close pending entry")
	}
	info, err := os.Stat(q.path(env.SN))
	ctime := time.Now()
	if err == nil {
		ctime = info.ModTime()
	}

	q.tracker.Add(env.SN, env.Any)
	q.mu.Lock()
	q.pending = append(q.pending, slot{env: env, ctime: ctime})
	q.mu.Unlock()
	q.reportDepth()
	q.notify()
	return nil
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Queue) reportDepth() {
	q.mu.Lock()
	n := len(q.pending)
	q.mu.Unlock()
	q.metrics.SetPendingDepth(n)
}

// tryPop takes a ctime-ordered snapshot of `pending` (per §9's resolution
// of the ordering Open Question, every scan is renormalized by ctime, not
// just the initial load), then pops the first entry that is not delayed,
// moving it into `uncommitted`. A cancelled entry skips the delayed check
// entirely (§4.H "Cancellation"), so cancellation is delivered promptly.
func (q *Queue) tryPop() *document.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	sortByCtime(q.pending)
	now := time.Now()
	for i, s := range q.pending {
		cancelled := q.tracker.Cancelled(s.env.SN)
		if !cancelled && window.Future(s.env.Window, now) {
			continue // delayed: leave in place, consider the next one
		}
		q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
		q.uncommitted[s.env.SN] = s.env
		return s.env
	}
	return nil
}

// Get blocks up to wait for an entry to become dispatchable, per the
// per-second polling algorithm in §4.H. It returns (nil, nil) on timeout,
// matching §8 invariant 6's reader.next contract. The caller must re-check
// tracker.Cancelled(sn) before executing the returned envelope: the
// delayed check above is not re-verified between pop and dispatch (§9
// Open Question — the executor's responsibility, not this queue's).
func (q *Queue) Get(ctx context.Context, wait time.Duration) (*document.Envelope, error) {
	deadline := time.Now().Add(wait)
	for {
		if env := q.tryPop(); env != nil {
			q.reportDepth()
			return env, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		step := time.Second
		if remaining < step {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.signal:
		case <-time.After(step):
		}
	}
}

// Commit removes sn from `uncommitted` and unlinks its file. Per §7, an
// unknown sn is logged and swallowed by the caller; Commit itself returns
// ErrUnknownCommit so callers can choose how to log it.
func (q *Queue) Commit(sn string) error {
	q.mu.Lock()
	_, ok := q.uncommitted[sn]
	if ok {
		delete(q.uncommitted, sn)
	}
	q.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrUnknownCommit, "sn %q", sn)
	}
	if err := os.Remove(q.path(sn)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unlink pending entry")
	}
	// Tracker lifecycle is owned by the executor (§4.F): an envelope
	// leaving the pending queue is not the same event as its RMI
	// completing, so the tracker entry is left for the executor to
	// remove once it is done with sn.
	q.reportDepth()
	return nil
}

// Len reports the number of envelopes currently held in `pending`
// (excludes uncommitted entries handed out but not yet committed).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
