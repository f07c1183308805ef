// Package extract turns an uploaded document into the plain text used as a
// business idea. Plain text is read directly; PDFs go to a remote extraction
// service.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"planforge/internal/domain"
)

const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"

	stageName      = "extract"
	defaultTimeout = 60 * time.Second
	sniffLen       = 512
)

var (
	ErrExtractorUnavailable = errors.New("document extractor not configured")
	ErrEmptyText            = errors.New("document contains no text")
)

type Options struct {
	URL        string
	MaxBytes   int64
	HTTPClient *http.Client
}

// Extractor reads bounded uploads and returns normalized text.
type Extractor struct {
	url      string
	maxBytes int64
	client   *http.Client
}

type extractResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func New(opts Options) *Extractor {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	max := opts.MaxBytes
	if max <= 0 {
		max = 10 << 20
	}
	return &Extractor{url: strings.TrimSpace(opts.URL), maxBytes: max, client: client}
}

// MaxBytes is the largest accepted upload.
func (e *Extractor) MaxBytes() int64 { return e.maxBytes }

// Text reads body, checks its type and size, and returns the normalized text.
// Rejected uploads are validation errors; extractor failures are upstream
// errors.
func (e *Extractor) Text(ctx context.Context, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return "", documentError(fmt.Sprintf("must be at most %d bytes", e.maxBytes))
	}
	if len(data) == 0 {
		return "", documentError("is empty")
	}

	var text string
	switch kind := detectType(contentType, data); kind {
	case ContentTypeText:
		text = strings.ToValidUTF8(string(data), "")
	case ContentTypePDF:
		text, err = e.remote(ctx, data)
		if err != nil {
			return "", domain.NewUpstreamError(stageName, err)
		}
	default:
		return "", documentError("must be application/pdf or text/plain")
	}

	text = Normalize(text)
	if text == "" {
		return "", documentError(ErrEmptyText.Error())
	}
	return text, nil
}

func (e *Extractor) remote(ctx context.Context, data []byte) (string, error) {
	if e.url == "" {
		return "", ErrExtractorUnavailable
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build extractor request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypePDF)
	req.Header.Set("Accept", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call extractor: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read extractor response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("extractor status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out extractResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode extractor response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("extractor: %s", out.Error)
	}
	return out.Text, nil
}

// detectType resolves the declared media type, sniffing the content when
// the declaration is missing or generic.
func detectType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		switch mt {
		case ContentTypePDF, ContentTypeText:
			return mt
		case "application/octet-stream":
		default:
			return mt
		}
	}
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if bytes.HasPrefix(head, []byte("%PDF-")) {
		return ContentTypePDF
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return sniffed
}

// Normalize collapses whitespace and truncates to the accepted idea length.
func Normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= domain.MaxBusinessIdeaLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:domain.MaxBusinessIdeaLength]))
}

func documentError(msg string) error {
	verr := &domain.ValidationError{}
	verr.Add("document", msg)
	return verr
}
