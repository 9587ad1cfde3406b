// Package tangle implements the replication link between two Trees: push,
// pull or bidirectional, with loop suppression, periodic reconciliation,
// and reconnect backoff.
package tangle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/cuemby/acorndb/pkg/events"
	"github.com/cuemby/acorndb/pkg/log"
	"github.com/cuemby/acorndb/pkg/nut"
	"github.com/cuemby/acorndb/pkg/tree"
)

// Direction selects which way a Tangle forwards emissions.
type Direction int

const (
	Push Direction = iota
	Pull
	Bidirectional
)

// Status is a Tangle's externally visible connection state.
type Status string

const (
	StatusConnected   Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDead        Status = "dead"
)

// LocalTree is the subset of tree.Tree[T] a Tangle needs, narrowed to avoid
// an import cycle (pkg/tree never imports pkg/tangle) and to let tests
// supply a fake.
type LocalTree[T any] interface {
	Stash(id string, payload T) error
	Crack(id string) (T, bool, error)
	Toss(id string) (bool, error)
	LoadNut(id string) (nut.Nut[T], bool, error)
	ExportChanges(since tree.VersionVector) iter.Seq[nut.Nut[T]]
	ImportChanges(incoming iter.Seq[nut.Nut[T]]) error
	Subscribe() events.Subscriber
	Unsubscribe(sub events.Subscriber)
	Name() string
}

// RemotePeer abstracts an entangled counterpart: either another in-process
// Tree (direct ImportChanges call) or an HTTP URL (via the
// /stash/{type}/{id} surface).
type RemotePeer[T any] interface {
	PushStash(ctx context.Context, n nut.Nut[T]) error
	PullChanges(ctx context.Context, since tree.VersionVector) (iter.Seq[nut.Nut[T]], error)
	Describe() string
}

// InProcessPeer wraps another local Tree as a RemotePeer, used when both
// sides of a Tangle live in the same process (tests, single-node fan-out).
type InProcessPeer[T any] struct {
	Tree LocalTree[T]
}

// PushStash applies an incoming Nut through ImportChanges rather than
// Stash: Stash always mints a fresh version+timestamp and republishes a
// Stashed event, which would make a replicated write indistinguishable
// from a new local write and forward forever around a Tangle ring.
// ImportChanges judges the incoming Nut against whatever is already
// stored at its own version, so re-delivering the same Nut (as happens
// when it echoes back around a cycle) is a no-op that does not
// re-publish Stashed and therefore does not get forwarded again.
func (p InProcessPeer[T]) PushStash(_ context.Context, n nut.Nut[T]) error {
	if n.Tombstone() {
		_, err := p.Tree.Toss(n.ID)
		return err
	}
	return p.Tree.ImportChanges(sliceSeq([]nut.Nut[T]{n}))
}

func (p InProcessPeer[T]) PullChanges(_ context.Context, since tree.VersionVector) (iter.Seq[nut.Nut[T]], error) {
	return p.Tree.ExportChanges(since), nil
}

func (p InProcessPeer[T]) Describe() string { return "in-process:" + p.Tree.Name() }

// HTTPPeer dispatches to a remote node's HTTP sync surface.
type HTTPPeer[T any] struct {
	BaseURL    string
	TypeName   string
	Client     *http.Client
}

// NewHTTPPeer builds an HTTPPeer against baseURL (e.g. "http://10.0.0.2:5000")
// for the given payload type name.
func NewHTTPPeer[T any](baseURL, typeName string) *HTTPPeer[T] {
	return &HTTPPeer[T]{BaseURL: baseURL, TypeName: typeName, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPPeer[T]) PushStash(ctx context.Context, n nut.Nut[T]) error {
	if n.Tombstone() {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/toss/%s/%s", p.BaseURL, p.TypeName, n.ID), nil)
		if err != nil {
			return err
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	}

	body, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	url := fmt.Sprintf("%s/stash/%s/%s", p.BaseURL, p.TypeName, n.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stash %s/%s: remote returned %d: %s", p.TypeName, n.ID, resp.StatusCode, string(data))
	}
	return nil
}

// PullChanges has no HTTP endpoint counterpart and always returns an empty
// sequence, so a Tangle over an HTTPPeer fetches nothing in its
// reconciliation loop and receives the remote's changes only when the
// remote side pushes them. A node embedding acorndb that exposes an export
// endpoint can supply its own RemotePeer instead.
func (p *HTTPPeer[T]) PullChanges(context.Context, tree.VersionVector) (iter.Seq[nut.Nut[T]], error) {
	return func(func(nut.Nut[T]) bool) {}, nil
}

func (p *HTTPPeer[T]) Describe() string { return p.BaseURL }

// Options configures a Tangle's timing.
type Options struct {
	ReconcileInterval time.Duration // default 3s
	AttemptTimeout    time.Duration // default 10s
	BackoffInitial    time.Duration // default 1s
	BackoffMax        time.Duration // default 60s
}

func (o Options) withDefaults() Options {
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = 3 * time.Second
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 10 * time.Second
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 60 * time.Second
	}
	return o
}

// Tangle replicates a local Tree against a remote peer, reconnecting under
// exponential backoff on transport failure. Loop suppression around a
// replication cycle comes from judge-based idempotency rather than an
// origin/hop-count field: every pushed or pulled Nut carries its real
// version and timestamp and is applied through ImportChanges, so an echo
// of a Nut already stored at that version is a no-op and is never
// re-forwarded (see PushStash and forward).
type Tangle[T any] struct {
	local     LocalTree[T]
	remote    RemotePeer[T]
	direction Direction
	opts      Options
	origin    string

	mu       sync.Mutex
	status   Status
	seen     map[string]uint64 // highest version imported from remote, per id
	deadline time.Time
	bo       backoff.BackOff

	sub    events.Subscriber
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Entangle creates and starts a Tangle between local and remote.
func Entangle[T any](local LocalTree[T], remote RemotePeer[T], direction Direction, opts Options) *Tangle[T] {
	opts = opts.withDefaults()
	tg := &Tangle[T]{
		local:     local,
		remote:    remote,
		direction: direction,
		opts:      opts,
		origin:    uuid.NewString(),
		status:    StatusConnected,
		seen:      make(map[string]uint64),
		bo:        newBackoff(opts),
		stopCh:    make(chan struct{}),
	}

	if direction == Push || direction == Bidirectional {
		tg.sub = local.Subscribe()
		tg.wg.Add(1)
		go tg.forwardLoop()
	}

	tg.wg.Add(1)
	go tg.reconcileLoop()

	return tg
}

// Stop halts the Tangle's background activities.
func (tg *Tangle[T]) Stop() {
	select {
	case <-tg.stopCh:
	default:
		close(tg.stopCh)
	}
	if tg.sub != nil {
		tg.local.Unsubscribe(tg.sub)
	}
	tg.wg.Wait()
}

// Status reports the Tangle's current connection state.
func (tg *Tangle[T]) Status() Status {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.status
}

func (tg *Tangle[T]) forwardLoop() {
	defer tg.wg.Done()
	for {
		select {
		case ev, ok := <-tg.sub:
			if !ok {
				return
			}
			if ev.Kind != events.KindStashed && ev.Kind != events.KindTossed {
				continue
			}
			tg.forward(ev.ID)
		case <-tg.stopCh:
			return
		}
	}
}

// forward dispatches the id named by a Stashed/Tossed event to the remote
// peer, carrying the Nut's real Version and Timestamp rather than
// synthesizing a new one. Forwarding the stored Nut unchanged is what lets
// the receiving side's judge-based idempotency (see PushStash) recognize
// and drop an echo instead of re-stamping and re-emitting it.
func (tg *Tangle[T]) forward(id string) {
	n, ok, err := tg.local.LoadNut(id)
	if err != nil {
		log.WithTangle(tg.origin).Error().Err(err).Str("id", id).Msg("forward: local load failed")
		return
	}
	if !ok {
		// Toss hard-deletes rather than keeping a tombstone Nut, so there is
		// no stored version to carry; synthesize a version-0 tombstone so the
		// peer still catches up on the deletion.
		n = nut.Nut[T]{ID: id}
	}

	tg.pushWithRetry(n)
}

// pushWithRetry attempts PushStash once and, on failure, schedules one
// retry after the Tangle's backoff interval rather than blocking the
// forward loop — a slow or down peer must not stall delivery to other
// attached Tangles.
func (tg *Tangle[T]) pushWithRetry(n nut.Nut[T]) {
	ctx, cancel := context.WithTimeout(context.Background(), tg.opts.AttemptTimeout)
	defer cancel()

	if err := tg.remote.PushStash(ctx, n); err != nil {
		tg.recordFailure(err)
		if tg.Status() == StatusDead {
			return
		}
		delay := tg.nextBackoff()
		time.AfterFunc(delay, func() {
			select {
			case <-tg.stopCh:
			default:
				tg.pushWithRetry(n)
			}
		})
		return
	}
	tg.recordSuccess()
}

func (tg *Tangle[T]) nextBackoff() time.Duration {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.bo.NextBackOff()
}

func (tg *Tangle[T]) reconcileLoop() {
	defer tg.wg.Done()
	ticker := time.NewTicker(tg.opts.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tg.reconcile()
		case <-tg.stopCh:
			return
		}
	}
}

// reconcile sends the remote the versions already imported from it (the
// seen vector) and imports whatever newer Nuts the remote returns. Echoes
// of Nuts already stored locally are absorbed by ImportChanges' judge-based
// idempotency, not by the seen vector.
func (tg *Tangle[T]) reconcile() {
	if tg.direction != Pull && tg.direction != Bidirectional {
		return
	}

	tg.mu.Lock()
	since := make(tree.VersionVector, len(tg.seen))
	for k, v := range tg.seen {
		since[k] = v
	}
	tg.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), tg.opts.AttemptTimeout)
	defer cancel()

	changes, err := tg.remote.PullChanges(ctx, since)
	if err != nil {
		tg.recordFailure(err)
		return
	}

	var imported []nut.Nut[T]
	for n := range changes {
		imported = append(imported, n)
	}

	if err := tg.local.ImportChanges(sliceSeq(imported)); err != nil {
		tg.recordFailure(err)
		return
	}

	tg.mu.Lock()
	for _, n := range imported {
		if v, ok := tg.seen[n.ID]; !ok || n.Version > v {
			tg.seen[n.ID] = n.Version
		}
	}
	tg.mu.Unlock()

	tg.recordSuccess()
}

func sliceSeq[T any](items []nut.Nut[T]) func(yield func(nut.Nut[T]) bool) {
	return func(yield func(nut.Nut[T]) bool) {
		for _, n := range items {
			if !yield(n) {
				return
			}
		}
	}
}

func (tg *Tangle[T]) recordSuccess() {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.status = StatusConnected
	tg.deadline = time.Time{}
	tg.bo.Reset()
}

// recordFailure transitions to reconnecting and tracks how long the Tangle
// has gone without a successful exchange; past 5x the backoff cap it is
// declared dead.
func (tg *Tangle[T]) recordFailure(err error) {
	tg.mu.Lock()
	defer tg.mu.Unlock()

	if tg.deadline.IsZero() {
		tg.deadline = time.Now().Add(5 * tg.opts.BackoffMax)
	}
	if time.Now().After(tg.deadline) {
		tg.status = StatusDead
	} else {
		tg.status = StatusReconnecting
	}
	log.WithTangle(tg.origin).Error().Err(err).Str("status", string(tg.status)).Msg("tangle transport failure")
}

// newBackoff builds the exponential-backoff policy: initial 1s, cap 60s,
// ~10% jitter, no max elapsed time (the caller
// decides when to give up via the dead-status deadline).
func newBackoff(opts Options) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.BackoffInitial
	b.MaxInterval = opts.BackoffMax
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	return b
}
