// Package version implements the document version lifecycle over the remote
// gateway: cached reads, uploads, rollback, and deletion, with the lifecycle
// invariants enforced before any network call is made.
package version

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"docvault/client/internal/apperr"
	"docvault/client/internal/cache"
	"docvault/client/internal/gateway"
)

// Gateway is the remote surface the store depends on.
type Gateway interface {
	GetDocument(ctx context.Context, id string) (gateway.Document, error)
	ListDocuments(ctx context.Context) ([]gateway.Document, error)
	ListVersions(ctx context.Context, documentID string) ([]gateway.Version, error)
	CreateVersion(ctx context.Context, documentID string, req gateway.CreateVersionRequest) (gateway.Version, error)
	DeleteVersion(ctx context.Context, documentID, versionID string) error
	DownloadVersion(ctx context.Context, documentID, versionID string) (gateway.Download, error)
	DownloadDocument(ctx context.Context, documentID string) (gateway.Download, error)
	Rollback(ctx context.Context, documentID, versionID, reason string) (gateway.Document, error)
	GetMetadata(ctx context.Context, documentID string) (gateway.Metadata, error)
	ListAuditLog(ctx context.Context, documentID string) ([]gateway.AuditEntry, error)
}

// Store serves document and version state read-through the cache and routes
// mutations to the gateway. The cache is optional; without one every read goes
// to the network.
type Store struct {
	gw        Gateway
	cache     *cache.Store
	validate  *validator.Validate
	maxUpload int64
	log       zerolog.Logger
}

func NewStore(gw Gateway, c *cache.Store, maxUpload int64, log zerolog.Logger) *Store {
	return &Store{
		gw:        gw,
		cache:     c,
		validate:  validator.New(),
		maxUpload: maxUpload,
		log:       log.With().Str("component", "version").Logger(),
	}
}

// CreateVersionInput describes a new version upload. Title is required only
// when metadata is not inherited from the current version.
type CreateVersionInput struct {
	FileName           string    `validate:"required"`
	File               io.Reader `validate:"required"`
	FileSize           int64     `validate:"gte=0"`
	InheritMetadata    bool
	Title              string `validate:"required_if=InheritMetadata false"`
	Description        string
	TagIDs             []int64
	ChangesDescription string
	Reason             string
}

func (s *Store) Document(ctx context.Context, id string) (gateway.Document, error) {
	if s.cache != nil {
		if doc, ok := s.cache.GetDocument(ctx, id); ok {
			return doc, nil
		}
	}
	doc, err := s.gw.GetDocument(ctx, id)
	if err != nil {
		return gateway.Document{}, err
	}
	s.fill(ctx, func() error { return s.cache.PutDocument(ctx, doc) })
	return doc, nil
}

func (s *Store) Documents(ctx context.Context) ([]gateway.Document, error) {
	if s.cache != nil {
		if docs, ok := s.cache.GetDocuments(ctx); ok {
			return docs, nil
		}
	}
	docs, err := s.gw.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, func() error { return s.cache.PutDocuments(ctx, docs) })
	return docs, nil
}

// Versions returns the document's history, newest first. Exactly one version
// is marked current; a malformed listing from the gateway is normalized rather
// than surfaced.
func (s *Store) Versions(ctx context.Context, documentID string) ([]gateway.Version, error) {
	if s.cache != nil {
		if versions, ok := s.cache.GetVersions(ctx, documentID); ok {
			return versions, nil
		}
	}
	versions, err := s.gw.ListVersions(ctx, documentID)
	if err != nil {
		return nil, err
	}
	versions = canonicalize(versions, s.log)
	s.fill(ctx, func() error { return s.cache.PutVersions(ctx, documentID, versions) })
	return versions, nil
}

func (s *Store) Metadata(ctx context.Context, documentID string) (gateway.Metadata, error) {
	if s.cache != nil {
		if meta, ok := s.cache.GetMetadata(ctx, documentID); ok {
			return meta, nil
		}
	}
	meta, err := s.gw.GetMetadata(ctx, documentID)
	if err != nil {
		return gateway.Metadata{}, err
	}
	s.fill(ctx, func() error { return s.cache.PutMetadata(ctx, documentID, meta) })
	return meta, nil
}

func (s *Store) AuditLog(ctx context.Context, documentID string) ([]gateway.AuditEntry, error) {
	if s.cache != nil {
		if entries, ok := s.cache.GetAuditLog(ctx, documentID); ok {
			return entries, nil
		}
	}
	entries, err := s.gw.ListAuditLog(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, func() error { return s.cache.PutAuditLog(ctx, documentID, entries) })
	return entries, nil
}

// Create uploads a new version. The upload becomes the current version; every
// cached scope of the document is invalidated on success.
func (s *Store) Create(ctx context.Context, documentID string, input CreateVersionInput) (gateway.Version, error) {
	if err := s.validate.Struct(input); err != nil {
		return gateway.Version{}, apperr.Wrap(apperr.KindValidation, "invalid version upload", err)
	}
	if s.maxUpload > 0 && input.FileSize > s.maxUpload {
		return gateway.Version{}, apperr.New(apperr.KindValidation,
			fmt.Sprintf("file exceeds the %d byte upload limit", s.maxUpload))
	}

	changes := input.ChangesDescription
	if changes == "" {
		changes = input.Reason
	}
	created, err := s.gw.CreateVersion(ctx, documentID, gateway.CreateVersionRequest{
		FileName:           input.FileName,
		File:               input.File,
		InheritMetadata:    input.InheritMetadata,
		Title:              input.Title,
		Description:        input.Description,
		TagIDs:             input.TagIDs,
		ChangesDescription: changes,
		Reason:             input.Reason,
	})
	if err != nil {
		return gateway.Version{}, err
	}
	s.invalidate(ctx, documentID)
	return created, nil
}

// Rollback restores an older version by creating a new version with its
// content. Rolling back to the version that is already current is rejected
// before any network call.
func (s *Store) Rollback(ctx context.Context, documentID, versionID, reason string) (gateway.Document, error) {
	target, err := s.find(ctx, documentID, versionID)
	if err != nil {
		return gateway.Document{}, err
	}
	if target.IsCurrent {
		return gateway.Document{}, apperr.New(apperr.KindConflict,
			fmt.Sprintf("version %d is already current", target.VersionNumber))
	}

	doc, err := s.gw.Rollback(ctx, documentID, versionID, reason)
	if err != nil {
		return gateway.Document{}, err
	}
	s.invalidate(ctx, documentID)
	return doc, nil
}

// Delete removes a non-current version. The current version and the last
// remaining version are protected; both guards run before any network call.
func (s *Store) Delete(ctx context.Context, documentID, versionID string) error {
	versions, err := s.Versions(ctx, documentID)
	if err != nil {
		return err
	}
	target, ok := pick(versions, versionID)
	if !ok {
		return apperr.New(apperr.KindNotFound, "version "+versionID+" not found")
	}
	if target.IsCurrent {
		return apperr.New(apperr.KindConflict, "the current version cannot be deleted")
	}
	if len(versions) == 1 {
		return apperr.New(apperr.KindConflict, "a document must keep at least one version")
	}

	if err := s.gw.DeleteVersion(ctx, documentID, versionID); err != nil {
		return err
	}
	s.invalidate(ctx, documentID)
	return nil
}

func (s *Store) Download(ctx context.Context, documentID, versionID string) (gateway.Download, error) {
	return s.gw.DownloadVersion(ctx, documentID, versionID)
}

// DownloadCurrent resolves the current version's content.
func (s *Store) DownloadCurrent(ctx context.Context, documentID string) (gateway.Download, error) {
	return s.gw.DownloadDocument(ctx, documentID)
}

func (s *Store) find(ctx context.Context, documentID, versionID string) (gateway.Version, error) {
	versions, err := s.Versions(ctx, documentID)
	if err != nil {
		return gateway.Version{}, err
	}
	target, ok := pick(versions, versionID)
	if !ok {
		return gateway.Version{}, apperr.New(apperr.KindNotFound, "version "+versionID+" not found")
	}
	return target, nil
}

func pick(versions []gateway.Version, versionID string) (gateway.Version, bool) {
	for _, v := range versions {
		if v.ID == versionID {
			return v, true
		}
	}
	return gateway.Version{}, false
}

// invalidate drops the document's cached scopes after a successful mutation.
// Invalidation failures are logged, never returned: the mutation already
// happened and must not be reported as failed.
func (s *Store) invalidate(ctx context.Context, documentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDocument(ctx, documentID); err != nil {
		s.log.Warn().Str("document_id", documentID).Err(err).Msg("cache invalidation failed")
	}
}

func (s *Store) fill(ctx context.Context, put func() error) {
	if s.cache == nil {
		return
	}
	if err := put(); err != nil {
		s.log.Warn().Err(err).Msg("cache fill failed")
	}
}

// canonicalize orders versions newest first and repairs a listing where the
// gateway marked more than one version current: only the newest of them keeps
// the flag.
func canonicalize(versions []gateway.Version, log zerolog.Logger) []gateway.Version {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].VersionNumber > versions[j].VersionNumber
	})

	current := 0
	for _, v := range versions {
		if v.IsCurrent {
			current++
		}
	}
	if current > 1 {
		log.Warn().Int("current", current).Msg("gateway listed multiple current versions")
		seen := false
		for i := range versions {
			if !versions[i].IsCurrent {
				continue
			}
			if seen {
				versions[i].IsCurrent = false
			}
			seen = true
		}
	}
	return versions
}
