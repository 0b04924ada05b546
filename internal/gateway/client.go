package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docvault/client/internal/apperr"
)

// Client talks to the remote document gateway.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

func New(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// CreateVersionRequest is the multipart payload for a new version upload. A
// file is mandatory; metadata is either inherited from the current version or
// given explicitly.
type CreateVersionRequest struct {
	FileName           string
	File               io.Reader
	InheritMetadata    bool
	Title              string
	Description        string
	TagIDs             []int64
	ChangesDescription string
	Reason             string
}

func (c *Client) GetDocument(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := c.do(ctx, http.MethodGet, "/documents/"+id, nil, "", &doc)
	return doc, err
}

func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/documents", nil, "", &raw); err != nil {
		return nil, err
	}
	var docs []Document
	if err := decodeCollection(raw, &docs); err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "malformed document collection", err)
	}
	return docs, nil
}

func (c *Client) ListVersions(ctx context.Context, documentID string) ([]Version, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/documents/"+documentID+"/versions", nil, "", &raw); err != nil {
		return nil, err
	}
	var versions []Version
	if err := decodeCollection(raw, &versions); err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "malformed version list", err)
	}
	return versions, nil
}

func (c *Client) CreateVersion(ctx context.Context, documentID string, req CreateVersionRequest) (Version, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.FileName)
	if err != nil {
		return Version{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return Version{}, fmt.Errorf("copy upload: %w", err)
	}

	fields := map[string]string{
		"inherit_metadata":    strconv.FormatBool(req.InheritMetadata),
		"changes_description": req.ChangesDescription,
		"reason":              req.Reason,
	}
	if !req.InheritMetadata {
		fields["title"] = req.Title
		fields["description"] = req.Description
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return Version{}, fmt.Errorf("write field %s: %w", key, err)
		}
	}
	if !req.InheritMetadata {
		for _, id := range req.TagIDs {
			if err := writer.WriteField("tag_ids", strconv.FormatInt(id, 10)); err != nil {
				return Version{}, fmt.Errorf("write tag id: %w", err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		return Version{}, fmt.Errorf("close multipart: %w", err)
	}

	var version Version
	err = c.do(ctx, http.MethodPost, "/documents/"+documentID+"/versions", &body, writer.FormDataContentType(), &version)
	return version, err
}

func (c *Client) DeleteVersion(ctx context.Context, documentID, versionID string) error {
	return c.do(ctx, http.MethodDelete, "/documents/"+documentID+"/versions/"+versionID, nil, "", nil)
}

// DownloadVersion returns either a pre-signed URL (JSON response) or the raw
// payload, depending on how the gateway is configured.
func (c *Client) DownloadVersion(ctx context.Context, documentID, versionID string) (Download, error) {
	return c.download(ctx, "/documents/"+documentID+"/versions/"+versionID+"/download")
}

// DownloadDocument resolves the current version's content.
func (c *Client) DownloadDocument(ctx context.Context, documentID string) (Download, error) {
	return c.download(ctx, "/documents/"+documentID+"/download")
}

func (c *Client) Rollback(ctx context.Context, documentID, versionID, reason string) (Document, error) {
	payload, err := json.Marshal(map[string]string{
		"version_id": versionID,
		"reason":     reason,
	})
	if err != nil {
		return Document{}, fmt.Errorf("marshal rollback: %w", err)
	}
	var doc Document
	err = c.do(ctx, http.MethodPost, "/documents/"+documentID+"/rollback", bytes.NewReader(payload), "application/json", &doc)
	return doc, err
}

func (c *Client) GetMetadata(ctx context.Context, documentID string) (Metadata, error) {
	var meta Metadata
	err := c.do(ctx, http.MethodGet, "/documents/"+documentID+"/metadata", nil, "", &meta)
	return meta, err
}

func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tags", nil, "", &raw); err != nil {
		return nil, err
	}
	var tags []Tag
	if err := decodeCollection(raw, &tags); err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "malformed tag list", err)
	}
	return tags, nil
}

func (c *Client) CreateTag(ctx context.Context, key, value string) (Tag, error) {
	payload, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return Tag{}, fmt.Errorf("marshal tag: %w", err)
	}
	var tag Tag
	err = c.do(ctx, http.MethodPost, "/tags", bytes.NewReader(payload), "application/json", &tag)
	return tag, err
}

func (c *Client) ListAuditLog(ctx context.Context, documentID string) ([]AuditEntry, error) {
	var raw json.RawMessage
	path := "/audit/logs?document=" + url.QueryEscape(documentID)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &raw); err != nil {
		return nil, err
	}
	var entries []AuditEntry
	if err := decodeCollection(raw, &entries); err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "malformed audit log", err)
	}
	return entries, nil
}

// FetchURL retrieves an absolute (usually pre-signed) URL without attaching
// credentials.
func (c *Client) FetchURL(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindNetwork, "build request", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindNetwork, "fetch "+rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, "", apperr.FromStatus(resp.StatusCode, "fetch "+rawURL)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindNetwork, "read payload", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) download(ctx context.Context, path string) (Download, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return Download{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Download{}, c.decodeError(resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			DownloadURL string `json:"download_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Download{}, apperr.Wrap(apperr.KindNetwork, "decode download response", err)
		}
		return Download{URL: body.DownloadURL}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Download{}, apperr.Wrap(apperr.KindNetwork, "read download payload", err)
	}
	return Download{Data: data, ContentType: contentType}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindNetwork, "decode response", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, "build request", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Str("request_id", requestID).Str("path", path).Err(err).Msg("transport failure")
		return nil, apperr.Wrap(apperr.KindNetwork, method+" "+path, err)
	}
	return resp, nil
}

// decodeError maps the gateway's error envelope ({detail} or {error}, falling
// back to a generic message) onto the taxonomy.
func (c *Client) decodeError(resp *http.Response) error {
	message := "request failed"
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(data) > 0 {
		var envelope struct {
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil {
			switch {
			case envelope.Detail != "":
				message = envelope.Detail
			case envelope.Error != "":
				message = envelope.Error
			}
		}
	}
	return apperr.FromStatus(resp.StatusCode, message)
}

// decodeCollection accepts a bare array, {"results": [...]}, or
// {"versions": [...]} and decodes the sequence into out.
func decodeCollection(raw json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var envelope struct {
		Results  json.RawMessage `json:"results"`
		Versions json.RawMessage `json:"versions"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return err
	}
	switch {
	case envelope.Results != nil:
		return json.Unmarshal(envelope.Results, out)
	case envelope.Versions != nil:
		return json.Unmarshal(envelope.Versions, out)
	default:
		return fmt.Errorf("response is neither an array nor a result envelope")
	}
}
