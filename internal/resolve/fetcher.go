package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GatewayFetcher retrieves JSON documents over https:// directly and maps
// ipfs:// URIs through a configured HTTP gateway.
type GatewayFetcher struct {
	httpClient  *http.Client
	ipfsGateway string
	maxBody     int64
}

type FetcherConfig struct {
	IPFSGateway string
	HTTPTimeout time.Duration
	MaxBody     int64
}

func NewGatewayFetcher(cfg FetcherConfig) *GatewayFetcher {
	gw := strings.TrimRight(strings.TrimSpace(cfg.IPFSGateway), "/")
	if gw == "" {
		gw = "https://ipfs.io"
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 4 << 20
	}
	return &GatewayFetcher{
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ipfsGateway: gw,
		maxBody:     cfg.MaxBody,
	}
}

func (f *GatewayFetcher) FetchJSON(ctx context.Context, uri string) (json.RawMessage, error) {
	target, err := f.resolveURI(uri)
	if err != nil {
		return nil, &NetworkError{URI: uri, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &NetworkError{URI: uri, Err: err}
	}
	req.Header.Set("accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		return nil, &HTTPStatusError{URI: uri, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, &NetworkError{URI: uri, Err: err}
	}
	if !json.Valid(body) {
		return nil, &NotJSONError{URI: uri}
	}
	return json.RawMessage(body), nil
}

func (f *GatewayFetcher) resolveURI(uri string) (string, error) {
	switch {
	// http:// is accepted for local development gateways.
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return uri, nil
	case strings.HasPrefix(uri, "ipfs://"):
		path := strings.TrimPrefix(uri, "ipfs://")
		path = strings.TrimPrefix(path, "ipfs/")
		if path == "" {
			return "", fmt.Errorf("empty ipfs path")
		}
		return f.ipfsGateway + "/ipfs/" + path, nil
	default:
		return "", fmt.Errorf("unsupported uri scheme: %s", uri)
	}
}
