package solanarpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_LatestBlockhash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "getLatestBlockhash" {
			t.Fatalf("method=%q", req.Method)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"value":{"blockhash":"9CoY42r3y5WFDJjQX97e9m9THcVGpvuVSKjBjGkiksMR","lastValidBlockHeight":4242}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	bh, err := c.LatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("LatestBlockhash: %v", err)
	}
	if bh.LastValidBlockHeight != 4242 {
		t.Fatalf("lastValidBlockHeight=%d, want 4242", bh.LastValidBlockHeight)
	}
	if bh.Hash == ([32]byte{}) {
		t.Fatalf("empty blockhash")
	}
}

func TestClient_AccountInfo_MissingAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"context":{"slot":1},"value":null}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	data, exists, err := c.AccountInfo(context.Background(), "So11111111111111111111111111111111111111112")
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if exists || data != nil {
		t.Fatalf("want missing account, got exists=%v data=%x", exists, data)
	}
}

func TestClient_AccountInfo_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"value":{"data":["AQID","base64"],"owner":"11111111111111111111111111111111"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	data, exists, err := c.AccountInfo(context.Background(), "So11111111111111111111111111111111111111112")
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if !exists {
		t.Fatalf("want account found")
	}
	if string(data) != "\x01\x02\x03" {
		t.Fatalf("data=%x", data)
	}
}

func TestClient_SignatureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "getSignatureStatuses" {
			t.Fatalf("method=%q", req.Method)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"value":[{"slot":100,"confirmations":3,"err":null,"confirmationStatus":"confirmed"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	st, err := c.SignatureStatus(context.Background(), "sig")
	if err != nil {
		t.Fatalf("SignatureStatus: %v", err)
	}
	if st == nil || st.ConfirmationStatus != "confirmed" || st.Slot != 100 {
		t.Fatalf("status=%+v", st)
	}
}

func TestClient_SignatureStatus_Unknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"value":[null]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	st, err := c.SignatureStatus(context.Background(), "sig")
	if err != nil {
		t.Fatalf("SignatureStatus: %v", err)
	}
	if st != nil {
		t.Fatalf("want nil status for unseen signature, got %+v", st)
	}
}

func TestClient_RPCErrorUnwraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"code":-32602,"message":"invalid params"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	_, err := c.BlockHeight(context.Background())
	if !errors.Is(err, ErrRPCError) {
		t.Fatalf("want ErrRPCError, got %v", err)
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32602 {
		t.Fatalf("want *RPCError code -32602, got %v", err)
	}
}

func TestClient_MinimumBalanceForRentExemption(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "getMinimumBalanceForRentExemption" {
			t.Fatalf("method=%q", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0].(float64) != 82 {
			t.Fatalf("params=%v", req.Params)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":1461600}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	got, err := c.MinimumBalanceForRentExemption(context.Background(), 82)
	if err != nil {
		t.Fatalf("MinimumBalanceForRentExemption: %v", err)
	}
	if got != 1461600 {
		t.Fatalf("lamports=%d", got)
	}
}
