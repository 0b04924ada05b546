// Package tagsync resolves a working set of tag references into a list of
// persisted tag ids, creating missing tags on the gateway first.
package tagsync

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"docvault/client/internal/apperr"
	"docvault/client/internal/gateway"
)

// Ref is a single working tag reference: either an existing id, or a
// (key, value) pair that still needs resolving.
type Ref struct {
	ID    int64
	Key   string
	Value string
}

func (r Ref) saved() bool {
	return r.ID != 0
}

func (r Ref) pairKey() string {
	return r.Key + "\x00" + r.Value
}

// TagService is the slice of the gateway the engine needs.
type TagService interface {
	ListTags(ctx context.Context) ([]gateway.Tag, error)
	CreateTag(ctx context.Context, key, value string) (gateway.Tag, error)
}

// Failure records one reference whose remote creation failed. Reconciliation
// continues past it; the caller reports it to the user.
type Failure struct {
	Ref Ref
	Err error
}

// Result is the reconciliation outcome: the deduplicated id list for
// submission, the resolved tags, and any non-fatal failures.
type Result struct {
	TagIDs   []int64
	Resolved []gateway.Tag
	Failures []Failure
}

type Engine struct {
	tags TagService
	log  zerolog.Logger
}

func New(tags TagService, log zerolog.Logger) *Engine {
	return &Engine{
		tags: tags,
		log:  log.With().Str("component", "tagsync").Logger(),
	}
}

// NormalizeRefs trims keys and values and drops references that are empty
// after trimming. This runs at the submission boundary so whitespace-only
// keys never reach Reconcile.
func NormalizeRefs(refs []Ref) []Ref {
	out := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		ref.Key = strings.TrimSpace(ref.Key)
		ref.Value = strings.TrimSpace(ref.Value)
		if !ref.saved() && ref.Key == "" {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Reconcile turns the working set into a final id list:
//
//  1. unsaved refs are matched against the account's known tags by exact
//     (key, value) equality and adopt the matching id;
//  2. refs still unsaved are created remotely, strictly in sequence, to avoid
//     duplicate-tag races;
//  3. the result is deduplicated, first occurrence wins.
//
// A failed creation is recorded and skipped, never fatal. Reconciling the
// same working set twice with no intervening remote changes yields the same
// id set.
func (e *Engine) Reconcile(ctx context.Context, refs []Ref) (Result, error) {
	refs = dedupeRefs(refs)

	for _, ref := range refs {
		if !ref.saved() && strings.TrimSpace(ref.Key) == "" {
			return Result{}, apperr.New(apperr.KindValidation, "tag key is required")
		}
	}

	needsLookup := false
	for _, ref := range refs {
		if !ref.saved() {
			needsLookup = true
			break
		}
	}

	var known []gateway.Tag
	if needsLookup {
		var err error
		known, err = e.tags.ListTags(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("list known tags: %w", err)
		}
	}
	byPair := make(map[string]gateway.Tag, len(known))
	for _, tag := range known {
		byPair[tag.Key+"\x00"+tag.Value] = tag
	}

	var result Result
	seen := make(map[int64]struct{})
	for _, ref := range refs {
		resolved, err := e.resolve(ctx, ref, byPair)
		if err != nil {
			e.log.Warn().Str("key", ref.Key).Str("value", ref.Value).Err(err).Msg("tag creation failed")
			result.Failures = append(result.Failures, Failure{Ref: ref, Err: err})
			continue
		}
		if _, dup := seen[resolved.ID]; dup {
			continue
		}
		seen[resolved.ID] = struct{}{}
		result.TagIDs = append(result.TagIDs, resolved.ID)
		result.Resolved = append(result.Resolved, resolved)
	}
	return result, nil
}

func (e *Engine) resolve(ctx context.Context, ref Ref, byPair map[string]gateway.Tag) (gateway.Tag, error) {
	if ref.saved() {
		return gateway.Tag{ID: ref.ID, Key: ref.Key, Value: ref.Value}, nil
	}
	if tag, ok := byPair[ref.pairKey()]; ok {
		return tag, nil
	}
	tag, err := e.tags.CreateTag(ctx, ref.Key, ref.Value)
	if err != nil {
		return gateway.Tag{}, err
	}
	// Later refs with the same pair resolve to the created tag instead of
	// racing a second creation.
	byPair[ref.pairKey()] = tag
	return tag, nil
}

// dedupeRefs drops duplicate references, by id when present, otherwise by
// (key, value). First occurrence wins.
func dedupeRefs(refs []Ref) []Ref {
	seenID := make(map[int64]struct{})
	seenPair := make(map[string]struct{})
	out := make([]Ref, 0, len(refs))
	for _, ref := range refs {
		if ref.saved() {
			if _, dup := seenID[ref.ID]; dup {
				continue
			}
			seenID[ref.ID] = struct{}{}
		} else {
			if _, dup := seenPair[ref.pairKey()]; dup {
				continue
			}
			seenPair[ref.pairKey()] = struct{}{}
		}
		out = append(out, ref)
	}
	return out
}
