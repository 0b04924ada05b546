// Package gateway is the HTTP client for the remote document service. All
// response ambiguity (bare arrays vs result envelopes, error envelopes) is
// normalized here and never leaks into the components above it.
package gateway

import "time"

// User identifies the creator of a document, version, or tag.
type User struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Tag is a shared key/value label. Its lifecycle is independent of any single
// document.
type Tag struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
	CreatedBy   *User  `json:"created_by,omitempty"`
}

// Display returns the server-derived display name, or derives it locally when
// the server omitted it.
func (t Tag) Display() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	if t.Value != "" {
		return t.Key + ": " + t.Value
	}
	return t.Key
}

// Document is the metadata record a document id resolves to.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content,omitempty"`
	FileURL     string    `json:"file_url,omitempty"`
	FileSize    int64     `json:"file_size"`
	FileType    string    `json:"file_type"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
	CreatedBy   *User     `json:"created_by,omitempty"`
	Tags        []Tag     `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Version is one immutable entry in a document's history. Exactly one version
// per document is current at any time.
type Version struct {
	ID                 string    `json:"id"`
	VersionNumber      int       `json:"version_number"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	ChangesDescription string    `json:"changes_description"`
	Reason             string    `json:"reason"`
	FileSize           int64     `json:"file_size"`
	FileType           string    `json:"file_type"`
	IsCurrent          bool      `json:"is_current"`
	DownloadURL        string    `json:"download_url,omitempty"`
	CreatedBy          *User     `json:"created_by,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	Tags               []Tag     `json:"tags,omitempty"`
}

// Metadata is the snapshot offered when preparing a new version upload.
type Metadata struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Tags           []Tag  `json:"tags"`
	CurrentVersion int    `json:"current_version"`
}

// AuditEntry is one row of a document's audit trail.
type AuditEntry struct {
	ID           int64          `json:"id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	ResourceName string         `json:"resource_name"`
	Timestamp    time.Time      `json:"timestamp"`
	Details      map[string]any `json:"details,omitempty"`
}

// Download is either a pre-signed URL or the raw payload, depending on what
// the gateway returned.
type Download struct {
	URL         string
	Data        []byte
	ContentType string
}
