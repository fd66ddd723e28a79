package resolve

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// abiEncodeString packs a string the way a tokenURI call returns it:
// offset word, length word, padded bytes.
func abiEncodeString(s string) string {
	data := []byte(s)
	padded := make([]byte, (len(data)+31)/32*32)
	copy(padded, data)

	var out strings.Builder
	out.WriteString("0x")
	out.WriteString(fmt.Sprintf("%064x", 32))
	out.WriteString(fmt.Sprintf("%064x", len(data)))
	out.WriteString(hex.EncodeToString(padded))
	return out.String()
}

func TestRPCChainReader_TokenURI(t *testing.T) {
	const wantURI = "ipfs://bafycard/agent.json"

	var gotMethod string
	var gotData string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotMethod = req.Method
		if call, ok := req.Params[0].(map[string]any); ok {
			gotData, _ = call["data"].(string)
		}
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":"%s"}`, abiEncodeString(wantURI))
	}))
	defer srv.Close()

	r, err := NewRPCChainReader(RPCConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	uri, err := r.TokenURI(context.Background(), "0xabc", "7")
	if err != nil {
		t.Fatalf("tokenURI: %v", err)
	}
	if uri != wantURI {
		t.Fatalf("uri = %q, want %q", uri, wantURI)
	}
	if gotMethod != "eth_call" {
		t.Fatalf("method = %q", gotMethod)
	}
	wantData := "0x" + tokenURISelector + fmt.Sprintf("%064x", 7)
	if gotData != wantData {
		t.Fatalf("call data = %q, want %q", gotData, wantData)
	}
}

func TestRPCChainReader_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`)
	}))
	defer srv.Close()

	r, err := NewRPCChainReader(RPCConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if _, err := r.TokenURI(context.Background(), "0xabc", "7"); err == nil {
		t.Fatalf("expected rpc error")
	}
}

func TestEncodeTokenURICall(t *testing.T) {
	got, err := encodeTokenURICall("255")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "0x" + tokenURISelector + fmt.Sprintf("%064x", 255)
	if got != want {
		t.Fatalf("encoded = %q, want %q", got, want)
	}

	hexGot, err := encodeTokenURICall("0xff")
	if err != nil {
		t.Fatalf("encode hex: %v", err)
	}
	if hexGot != want {
		t.Fatalf("hex form = %q, want %q", hexGot, want)
	}

	if _, err := encodeTokenURICall("not-a-number"); err == nil {
		t.Fatalf("expected bad token id rejected")
	}
}

func TestDecodeABIString(t *testing.T) {
	got, err := decodeABIString(abiEncodeString("hello"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "hello" {
		t.Fatalf("decoded = %q", got)
	}

	if _, err := decodeABIString("0x1234"); err == nil {
		t.Fatalf("expected short result rejected")
	}
	if _, err := decodeABIString("zz"); err == nil {
		t.Fatalf("expected non-hex rejected")
	}
}

func TestDecodeABIString_HostileWords(t *testing.T) {
	// Offset and length words near 2^64 would wrap naive bounds
	// arithmetic; every one of these must come back as an error, never a
	// slice panic.
	wrapWord := strings.Repeat("0", 48) + "ffffffffffffffe0"
	zeroWord := strings.Repeat("0", 64)
	offsetWord := fmt.Sprintf("%064x", 32)

	cases := []struct {
		name string
		blob string
	}{
		{"wrapping offset", "0x" + wrapWord + zeroWord},
		{"wrapping length", "0x" + offsetWord + wrapWord},
		{"offset past end", "0x" + fmt.Sprintf("%064x", 4096) + zeroWord},
		{"length past end", "0x" + offsetWord + fmt.Sprintf("%064x", 1000)},
	}
	for _, tc := range cases {
		if _, err := decodeABIString(tc.blob); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestRPCChainReader_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"`))
		_, _ = w.Write([]byte(strings.Repeat("a", int(maxRPCBody))))
		_, _ = w.Write([]byte(`"}`))
	}))
	defer srv.Close()

	r, err := NewRPCChainReader(RPCConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	_, err = r.TokenURI(context.Background(), "0xabc", "7")
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("err = %v, want oversized response rejected", err)
	}
}
