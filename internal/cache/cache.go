// Package cache provides the client-side query cache and its invalidation
// coordinator. Entries are scoped per document (detail, version list, audit
// trail, metadata) plus two global collections (documents, known tags). A
// successful mutation invalidates whole scopes; the cache is never patched in
// place. The store is populated after sign-in and cleared on sign-out.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docvault/client/internal/gateway"
)

const keyPrefix = "docvault:"

// Store is a Redis-backed typed cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// New creates a store from a Redis URL and verifies connectivity.
func New(redisURL string, ttl time.Duration, log zerolog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl, log), nil
}

// NewWithClient creates a store from an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration, log zerolog.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "cache").Logger(),
	}
}

func keyDocument(id string) string { return keyPrefix + "doc:" + id }
func keyVersions(id string) string { return keyPrefix + "versions:" + id }
func keyAudit(id string) string    { return keyPrefix + "audit:" + id }
func keyMetadata(id string) string { return keyPrefix + "meta:" + id }
func keyDocuments() string         { return keyPrefix + "docs:all" }
func keyTags() string              { return keyPrefix + "tags:all" }

func (s *Store) GetDocument(ctx context.Context, id string) (gateway.Document, bool) {
	var doc gateway.Document
	return doc, s.get(ctx, keyDocument(id), &doc)
}

func (s *Store) PutDocument(ctx context.Context, doc gateway.Document) error {
	return s.put(ctx, keyDocument(doc.ID), doc)
}

func (s *Store) GetVersions(ctx context.Context, documentID string) ([]gateway.Version, bool) {
	var versions []gateway.Version
	return versions, s.get(ctx, keyVersions(documentID), &versions)
}

func (s *Store) PutVersions(ctx context.Context, documentID string, versions []gateway.Version) error {
	return s.put(ctx, keyVersions(documentID), versions)
}

func (s *Store) GetAuditLog(ctx context.Context, documentID string) ([]gateway.AuditEntry, bool) {
	var entries []gateway.AuditEntry
	return entries, s.get(ctx, keyAudit(documentID), &entries)
}

func (s *Store) PutAuditLog(ctx context.Context, documentID string, entries []gateway.AuditEntry) error {
	return s.put(ctx, keyAudit(documentID), entries)
}

func (s *Store) GetMetadata(ctx context.Context, documentID string) (gateway.Metadata, bool) {
	var meta gateway.Metadata
	return meta, s.get(ctx, keyMetadata(documentID), &meta)
}

func (s *Store) PutMetadata(ctx context.Context, documentID string, meta gateway.Metadata) error {
	return s.put(ctx, keyMetadata(documentID), meta)
}

func (s *Store) GetDocuments(ctx context.Context) ([]gateway.Document, bool) {
	var docs []gateway.Document
	return docs, s.get(ctx, keyDocuments(), &docs)
}

func (s *Store) PutDocuments(ctx context.Context, docs []gateway.Document) error {
	return s.put(ctx, keyDocuments(), docs)
}

func (s *Store) GetTags(ctx context.Context) ([]gateway.Tag, bool) {
	var tags []gateway.Tag
	return tags, s.get(ctx, keyTags(), &tags)
}

func (s *Store) PutTags(ctx context.Context, tags []gateway.Tag) error {
	return s.put(ctx, keyTags(), tags)
}

// InvalidateDocument drops every scope that depends on the given document:
// detail, version list, audit trail, metadata, and the global collection. The
// deletes run in one pipeline so a subsequent read cannot observe a partially
// invalidated document.
func (s *Store) InvalidateDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx,
			keyDocument(documentID),
			keyVersions(documentID),
			keyAudit(documentID),
			keyMetadata(documentID),
			keyDocuments(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate document %s: %w", documentID, err)
	}
	return nil
}

// InvalidateTags drops the known-tags collection.
func (s *Store) InvalidateTags(ctx context.Context) error {
	if err := s.client.Del(ctx, keyTags()).Err(); err != nil {
		return fmt.Errorf("invalidate tags: %w", err)
	}
	return nil
}

// Clear wipes every cached entry under the client prefix. Called on sign-out.
func (s *Store) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) get(ctx context.Context, key string, out any) bool {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		s.log.Warn().Str("key", key).Err(err).Msg("cache read failed")
		return false
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		s.log.Warn().Str("key", key).Err(err).Msg("cache entry corrupt")
		return false
	}
	return true
}

func (s *Store) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}
