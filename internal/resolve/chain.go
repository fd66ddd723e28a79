package resolve

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// tokenURI(uint256) function selector.
const tokenURISelector = "c87b56dd"

// maxRPCBody bounds the eth_call response; tokenURI results are tiny.
const maxRPCBody int64 = 1 << 20

// RPCChainReader reads ERC-721 tokenURI pointers through a JSON-RPC
// eth_call. Read-only; it never signs or submits transactions.
type RPCChainReader struct {
	endpoint   string
	httpClient *http.Client
}

type RPCConfig struct {
	Endpoint    string
	HTTPTimeout time.Duration
}

func NewRPCChainReader(cfg RPCConfig) (*RPCChainReader, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty rpc endpoint")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &RPCChainReader{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *RPCChainReader) TokenURI(ctx context.Context, registry, tokenID string) (string, error) {
	data, err := encodeTokenURICall(tokenID)
	if err != nil {
		return "", err
	}

	call := map[string]string{"to": registry, "data": data}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_call",
		Params:  []any{call, "latest"},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRPCBody+1))
	if err != nil {
		return "", err
	}
	if int64(len(respBody)) > maxRPCBody {
		return "", fmt.Errorf("rpc response exceeds %d bytes", maxRPCBody)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("rpc status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out rpcResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("rpc response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}

	uri, err := decodeABIString(out.Result)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(uri) == "" {
		return "", fmt.Errorf("empty tokenURI for token %s", tokenID)
	}
	return uri, nil
}

func encodeTokenURICall(tokenID string) (string, error) {
	id := new(big.Int)
	var ok bool
	if strings.HasPrefix(tokenID, "0x") || strings.HasPrefix(tokenID, "0X") {
		_, ok = id.SetString(tokenID[2:], 16)
	} else {
		_, ok = id.SetString(tokenID, 10)
	}
	if !ok || id.Sign() < 0 {
		return "", fmt.Errorf("bad token id %q", tokenID)
	}
	var arg [32]byte
	id.FillBytes(arg[:])
	return "0x" + tokenURISelector + hex.EncodeToString(arg[:]), nil
}

// decodeABIString unpacks a single ABI-encoded string return value:
// 32-byte offset, 32-byte length, then the UTF-8 bytes.
func decodeABIString(result string) (string, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(result), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("abi decode: %w", err)
	}
	if len(b) < 64 {
		return "", fmt.Errorf("abi decode: result too short (%d bytes)", len(b))
	}
	// The offset and length words come straight from an untrusted RPC
	// result; compare without adding so 2^64-scale values cannot wrap the
	// bounds checks. len(b) >= 64 here, so the subtractions are safe.
	offset := binary.BigEndian.Uint64(b[24:32])
	if offset > uint64(len(b))-32 {
		return "", fmt.Errorf("abi decode: bad offset %d", offset)
	}
	length := binary.BigEndian.Uint64(b[offset+24 : offset+32])
	start := offset + 32
	if length > uint64(len(b))-start {
		return "", fmt.Errorf("abi decode: bad length %d", length)
	}
	return string(b[start : start+length]), nil
}
