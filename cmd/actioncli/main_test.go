package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendlt/actionlog/internal/rpc"
)

func withEndpoint(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	prev, prevKey := rpcEndpoint, apiKey
	rpcEndpoint, apiKey = srv.URL, "k1"
	t.Cleanup(func() { rpcEndpoint, apiKey = prev, prevKey })
}

func TestMakeRPCCall(t *testing.T) {
	var got rpc.Request
	var gotKey string
	withEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(rpc.Response{JSONRPC: "2.0", ID: got.ID, Result: rpc.SequenceResult{Account: "0xabc", QueueLen: 3}})
	})

	var result rpc.SequenceResult
	require.NoError(t, makeRPCCall(context.Background(), "actionlog.log", rpc.LogParams{Action: "hello"}, &result))

	assert.Equal(t, "actionlog.log", got.Method)
	assert.JSONEq(t, `{"action":"hello"}`, string(got.Params))
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, "0xabc", result.Account)
	assert.Equal(t, 3, result.QueueLen)
}

func TestMakeRPCCallErrors(t *testing.T) {
	withEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rpc.Response{
			JSONRPC: "2.0",
			Error:   &rpc.RPCError{Code: -32000, Message: "confirmation timed out", Data: map[string]bool{"ambiguous": true}},
		})
	})

	err := makeRPCCall(context.Background(), "actionlog.log", rpc.LogParams{Action: "x"}, nil)
	var ce *callError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, -32000, ce.Code)
	assert.Contains(t, err.Error(), "confirmation timed out")
	assert.Same(t, err, printFailure(err))

	withEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	err = makeRPCCall(context.Background(), "actionlog.status", nil, nil)
	assert.ErrorContains(t, err, "HTTP error 502")
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n\n  second  \nthird"), 0o600))

	lines, err := readLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, lines)

	_, err = readLines(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNodeClient(t *testing.T) {
	client, err := nodeClient("", "testnet")
	require.NoError(t, err)
	assert.Equal(t, "https://fullnode.testnet.aptoslabs.com", client.GetEndpoint())
	client.Close()

	client, err = nodeClient("http://127.0.0.1:8080", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", client.GetEndpoint())
	client.Close()

	_, err = nodeClient("", "moonnet")
	assert.Error(t, err)
}
