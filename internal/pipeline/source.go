package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/util"
)

// ClaimSource reads claim documents from files, stdin ("-") or http(s) URLs
type ClaimSource struct {
	httpClient *http.Client
	maxBytes   int64
	stdin      io.Reader
}

// NewClaimSource creates a ClaimSource. Documents larger than maxBytes are rejected.
func NewClaimSource(cfg model.HTTPConfig, maxBytes int64) *ClaimSource {
	client := util.NewHTTPClient(cfg, 30*time.Second)
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 3 {
			return fmt.Errorf("stopped after 3 redirects")
		}
		return nil
	}

	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	return &ClaimSource{
		httpClient: client,
		maxBytes:   maxBytes,
		stdin:      os.Stdin,
	}
}

// Load reads and parses the claim at ref
func (s *ClaimSource) Load(ctx context.Context, ref string) (*model.ClaimInfo, error) {
	data, err := s.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	claim, err := model.ParseClaimInfo(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return claim, nil
}

// Read returns the raw claim document at ref
func (s *ClaimSource) Read(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "-":
		return s.readLimited(s.stdin, "stdin")
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return s.fetch(ctx, ref)
	default:
		f, err := os.Open(ref)
		if err != nil {
			return nil, fmt.Errorf("open claim: %w", err)
		}
		defer func() { _ = f.Close() }()
		return s.readLimited(f, ref)
	}
}

func (s *ClaimSource) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch claim: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch claim: unexpected status %s", resp.Status)
	}

	return s.readLimited(resp.Body, rawURL)
}

// readLimited reads at most maxBytes and fails rather than truncating
func (s *ClaimSource) readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", model.ErrValidation, name, s.maxBytes)
	}
	return data, nil
}
