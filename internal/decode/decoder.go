package decode

import (
	"context"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"docvault/client/internal/apperr"
)

// Fetcher retrieves a payload by URL. The gateway client implements it.
type Fetcher interface {
	FetchURL(ctx context.Context, url string) ([]byte, string, error)
}

// Decoder picks a decoding strategy by declared file type and produces a
// renderable representation. On any failure it hands back a download
// fallback alongside the error, so the viewer never gets stuck loading.
type Decoder struct {
	fetch    Fetcher
	renderer *Renderer
	policy   *bluemonday.Policy
	log      zerolog.Logger
}

func New(fetch Fetcher, renderer *Renderer, log zerolog.Logger) *Decoder {
	return &Decoder{
		fetch:    fetch,
		renderer: renderer,
		policy:   bluemonday.UGCPolicy(),
		log:      log.With().Str("component", "decode").Logger(),
	}
}

// Decode transforms the payload for display. The returned result is always
// usable: when err is non-nil it carries the download fallback.
func (d *Decoder) Decode(ctx context.Context, fileType string, src Source) (*Result, error) {
	switch normalizeType(fileType) {
	case "pdf":
		return d.decodePDF(ctx, src)
	case "docx", "doc":
		return d.decodeDOCX(ctx, src)
	case "jpg", "jpeg", "png", "gif":
		return &Result{Mode: ModeImage, URL: src.URL}, nil
	default:
		// TXT and anything unrecognized render as preformatted text, so the
		// viewer always has some representation.
		return d.decodeText(ctx, src)
	}
}

func (d *Decoder) decodePDF(ctx context.Context, src Source) (*Result, error) {
	if d.renderer != nil && d.renderer.Load(ctx) == RendererReady {
		return &Result{Mode: ModePDF, URL: src.URL}, nil
	}
	// Fail soft: no renderer means the document opens as a direct download,
	// never a fatal error.
	d.log.Debug().Msg("pdf renderer not ready, serving download")
	return &Result{Mode: ModeDownload, URL: src.URL}, nil
}

func (d *Decoder) decodeDOCX(ctx context.Context, src Source) (*Result, error) {
	data, err := d.payload(ctx, src)
	if err != nil {
		return &Result{Mode: ModeDownload, URL: src.URL}, err
	}
	fragment, err := ConvertDOCX(data)
	if err != nil {
		d.log.Warn().Err(err).Msg("docx conversion failed, falling back to download")
		return &Result{Mode: ModeDownload, URL: src.URL}, err
	}
	return &Result{Mode: ModeHTML, HTML: d.policy.Sanitize(fragment)}, nil
}

func (d *Decoder) decodeText(ctx context.Context, src Source) (*Result, error) {
	data, err := d.payload(ctx, src)
	if err != nil {
		return &Result{Mode: ModeDownload, URL: src.URL}, err
	}
	return &Result{Mode: ModeText, Text: string(data)}, nil
}

func (d *Decoder) payload(ctx context.Context, src Source) ([]byte, error) {
	if src.Data != nil {
		return src.Data, nil
	}
	if src.URL == "" {
		return nil, apperr.New(apperr.KindDecode, "payload has neither data nor url")
	}
	data, _, err := d.fetch.FetchURL(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return data, nil
}
