// Package attach validates, retrieves, and size-checks inbound image
// attachments so they can be handed to the AI backend.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"hrai/internal/domain"
)

// ErrNoAttachment is returned when the pipeline is invoked for a message
// without attachments; routing should have prevented the call.
var ErrNoAttachment = errors.New("no attachment present")

// RejectReason classifies a user-facing rejection.
type RejectReason string

const (
	RejectUnsupportedFormat RejectReason = "unsupported_format"
	RejectTooLarge          RejectReason = "too_large"
)

// RejectionError is a non-fatal, user-visible refusal to ingest an
// attachment. It is distinct from fetch/IO failures, which surface as plain
// errors.
type RejectionError struct {
	Reason   RejectReason
	MimeType string
	Size     int64
	Limit    int64
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case RejectUnsupportedFormat:
		return fmt.Sprintf("unsupported attachment format %q", e.MimeType)
	case RejectTooLarge:
		return fmt.Sprintf("attachment of %d bytes exceeds the %d byte limit", e.Size, e.Limit)
	}
	return string(e.Reason)
}

// Payload is an accepted image ready for the backend. When the pipeline
// staged the bytes to disk, Close removes the file; Close is safe to call
// multiple times and must run on every exit path of the job.
type Payload struct {
	Bytes    []byte
	MimeType string

	stagedPath string
	cleanup    sync.Once
	logger     *slog.Logger
}

// Close deletes the staged file, if any. Idempotent.
func (p *Payload) Close() error {
	var err error
	p.cleanup.Do(func() {
		if p.stagedPath == "" {
			return
		}
		err = os.Remove(p.stagedPath)
		if err != nil && p.logger != nil {
			p.logger.Warn("staged attachment cleanup failed", "path", p.stagedPath, "error", err)
		}
	})
	return err
}

// StagedPath reports where the bytes were spooled, empty when in-memory.
func (p *Payload) StagedPath() string { return p.stagedPath }

type Config struct {
	MaxBytes     int64
	AllowedTypes []string
	SpoolDir     string // empty = keep downloads in memory only
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Pipeline ingests one attachment per message: MIME gate, bounded download,
// measured size check, optional disk staging. It never retries a failed
// download.
type Pipeline struct {
	maxBytes int64
	allowed  map[string]struct{}
	spoolDir string
	client   *http.Client
	logger   *slog.Logger
}

func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.MaxBytes < 1 {
		return nil, fmt.Errorf("attach: maxBytes must be positive")
	}
	if len(cfg.AllowedTypes) == 0 {
		return nil, fmt.Errorf("attach: allowedTypes must not be empty")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = sharedHTTPClient(30 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SpoolDir != "" {
		if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
			return nil, fmt.Errorf("attach: create spool dir: %w", err)
		}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, mt := range cfg.AllowedTypes {
		allowed[normalizeMime(mt)] = struct{}{}
	}
	return &Pipeline{
		maxBytes: cfg.MaxBytes,
		allowed:  allowed,
		spoolDir: cfg.SpoolDir,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}, nil
}

// supported reports whether the declared MIME type passes the format gate.
func (p *Pipeline) supported(mimeType string) bool {
	_, ok := p.allowed[normalizeMime(mimeType)]
	return ok
}

// Ingest processes the first attachment of a message; additional attachments
// are silently ignored. The MIME gate runs before any network fetch, and a
// declared size over the ceiling also rejects without fetching.
func (p *Pipeline) Ingest(ctx context.Context, attachments []domain.Attachment) (*Payload, error) {
	if len(attachments) == 0 {
		return nil, ErrNoAttachment
	}
	att := attachments[0]

	if !p.supported(att.MimeType) {
		return nil, &RejectionError{Reason: RejectUnsupportedFormat, MimeType: att.MimeType}
	}
	mimeType := normalizeMime(att.MimeType)
	if att.Size > p.maxBytes {
		return nil, &RejectionError{Reason: RejectTooLarge, Size: att.Size, Limit: p.maxBytes}
	}

	data, err := p.fetch(ctx, att.URL)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > p.maxBytes {
		// Oversize payloads never touch the spool.
		return nil, &RejectionError{Reason: RejectTooLarge, Size: int64(len(data)), Limit: p.maxBytes}
	}

	payload := &Payload{Bytes: data, MimeType: mimeType, logger: p.logger}
	if p.spoolDir != "" {
		staged, err := p.stage(data)
		if err != nil {
			return nil, err
		}
		payload.stagedPath = staged
	}
	return payload, nil
}

// fetch downloads at most maxBytes+1 bytes so an oversize body is detected
// without buffering the whole thing.
func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("attach fetch: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attach fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attach fetch: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("attach fetch: read body: %w", err)
	}
	return data, nil
}

// stage spools accepted bytes to a uniquely named file under the spool dir.
func (p *Pipeline) stage(data []byte) (string, error) {
	f, err := os.CreateTemp(p.spoolDir, "attach-*")
	if err != nil {
		return "", fmt.Errorf("attach stage: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("attach stage: write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("attach stage: close: %w", err)
	}
	return f.Name(), nil
}

// normalizeMime lowercases the type and drops parameters
// ("image/PNG; charset=x" -> "image/png").
func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
