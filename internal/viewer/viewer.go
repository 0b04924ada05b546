// Package viewer drives the document viewing lifecycle. At most one document
// is open at a time; opening another closes the previous one, and responses
// arriving for an already-closed document are discarded.
package viewer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"docvault/client/internal/decode"
	"docvault/client/internal/gateway"
)

// State is the viewing lifecycle state.
type State int

const (
	StateClosed State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Source resolves a document and its current content. The version store
// implements it.
type Source interface {
	Document(ctx context.Context, id string) (gateway.Document, error)
	DownloadCurrent(ctx context.Context, id string) (gateway.Download, error)
}

// Decoder turns a downloaded payload into a renderable representation.
type Decoder interface {
	Decode(ctx context.Context, fileType string, src decode.Source) (*decode.Result, error)
}

// Snapshot is the observable viewer state at one point in time.
type Snapshot struct {
	State    State
	Document gateway.Document
	Result   *decode.Result
	Err      error
}

// Viewer is the viewing state machine. Transitions are guarded by a
// generation counter: each Open bumps the generation, and a load completing
// under a stale generation is dropped without touching the state.
type Viewer struct {
	source  Source
	decoder Decoder
	log     zerolog.Logger

	// onChange and onFallback fire after each transition, outside the lock.
	onChange   func(Snapshot)
	onFallback func(url string)

	mu     sync.Mutex
	state  State
	doc    gateway.Document
	result *decode.Result
	err    error
	gen    uint64
	cancel context.CancelFunc
}

type Option func(*Viewer)

// WithChangeHook registers a callback fired after every state transition.
func WithChangeHook(fn func(Snapshot)) Option {
	return func(v *Viewer) { v.onChange = fn }
}

// WithFallbackHook registers a callback fired when a document cannot be
// displayed inline and should be downloaded instead.
func WithFallbackHook(fn func(url string)) Option {
	return func(v *Viewer) { v.onFallback = fn }
}

func New(source Source, decoder Decoder, log zerolog.Logger, opts ...Option) *Viewer {
	v := &Viewer{
		source:  source,
		decoder: decoder,
		log:     log.With().Str("component", "viewer").Logger(),
		state:   StateClosed,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Open starts loading the document for display. Any previously open document
// is closed first. The load runs in the background; observe completion through
// the change hook or Snapshot.
func (v *Viewer) Open(ctx context.Context, documentID string) {
	v.mu.Lock()
	v.closeLocked()
	v.gen++
	gen := v.gen
	v.state = StateLoading
	v.doc = gateway.Document{ID: documentID}
	loadCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.mu.Unlock()

	v.notify()
	go v.load(loadCtx, gen, documentID)
}

// Close discards the open document and releases its decoded payload.
func (v *Viewer) Close() {
	v.mu.Lock()
	v.closeLocked()
	v.gen++
	v.state = StateClosed
	v.mu.Unlock()
	v.notify()
}

// Snapshot returns the current state.
func (v *Viewer) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{State: v.state, Document: v.doc, Result: v.result, Err: v.err}
}

func (v *Viewer) load(ctx context.Context, gen uint64, documentID string) {
	doc, err := v.source.Document(ctx, documentID)
	if err != nil {
		v.fail(gen, err)
		return
	}

	download, err := v.source.DownloadCurrent(ctx, documentID)
	if err != nil {
		v.fail(gen, err)
		return
	}

	result, err := v.decoder.Decode(ctx, doc.FileType, decode.Source{
		URL:  download.URL,
		Data: download.Data,
	})
	if err != nil {
		// The decoder hands back a download fallback with the error. Surface
		// the fallback and close instead of presenting a broken view.
		v.log.Warn().Str("document_id", documentID).Err(err).Msg("decode failed, offering download")
		v.fallback(gen, result)
		return
	}

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		result.Release()
		return
	}
	v.doc = doc
	v.result = result
	v.err = nil
	v.state = StateReady
	v.mu.Unlock()
	v.notify()
}

func (v *Viewer) fail(gen uint64, err error) {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.err = err
	v.state = StateError
	v.mu.Unlock()
	v.notify()
}

func (v *Viewer) fallback(gen uint64, result *decode.Result) {
	var url string
	if result != nil {
		url = result.URL
	}

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return
	}
	v.closeLocked()
	v.state = StateClosed
	v.mu.Unlock()

	if v.onFallback != nil && url != "" {
		v.onFallback(url)
	}
	v.notify()
}

// closeLocked cancels any in-flight load and releases the decoded payload.
// Callers hold v.mu.
func (v *Viewer) closeLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.result.Release()
	v.result = nil
	v.err = nil
	v.doc = gateway.Document{}
}

func (v *Viewer) notify() {
	if v.onChange != nil {
		v.onChange(v.Snapshot())
	}
}
