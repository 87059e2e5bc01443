package btcrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeNode is a minimal stand-in for Bitcoin Core's JSON-RPC 1.0 server,
// enough to exercise Client's request/response framing and error mapping.
func fakeNode(t *testing.T, handlers map[string]func(params []interface{}) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		h, ok := handlers[req.Method]
		if !ok {
			resp := response{ID: req.ID, Error: &rpcError{Code: -32601, Message: "Method not found"}}
			json.NewEncoder(w).Encode(resp)
			return
		}

		result, rpcErr := h(req.Params)
		if rpcErr != nil {
			json.NewEncoder(w).Encode(response{ID: req.ID, Error: rpcErr})
			return
		}
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		json.NewEncoder(w).Encode(response{ID: req.ID, Result: raw})
	}))
}

func TestClient_GetBlockCount(t *testing.T) {
	srv := fakeNode(t, map[string]func([]interface{}) (interface{}, *rpcError){
		"getblockcount": func(params []interface{}) (interface{}, *rpcError) {
			return 814521, nil
		},
	})
	defer srv.Close()

	c := New(srv.URL, "user", "pass")
	count, err := c.GetBlockCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(814521), count)
}

func TestClient_GetBlockHash(t *testing.T) {
	srv := fakeNode(t, map[string]func([]interface{}) (interface{}, *rpcError){
		"getblockhash": func(params []interface{}) (interface{}, *rpcError) {
			require.Len(t, params, 1)
			return "0000000000000000000abcdef", nil
		},
	})
	defer srv.Close()

	c := New(srv.URL, "user", "pass")
	hash, err := c.GetBlockHash(context.Background(), 840000)
	require.NoError(t, err)
	require.Equal(t, "0000000000000000000abcdef", hash)
}

func TestClient_RPCErrorNotRetried(t *testing.T) {
	var calls int
	srv := fakeNode(t, map[string]func([]interface{}) (interface{}, *rpcError){
		"getrawtransaction": func(params []interface{}) (interface{}, *rpcError) {
			calls++
			return nil, &rpcError{Code: -5, Message: "No such mempool or blockchain transaction"}
		},
	})
	defer srv.Close()

	c := New(srv.URL, "user", "pass")
	c.MaxElapsedTime = 200 * time.Millisecond
	var out string
	err := c.Call(context.Background(), "getrawtransaction", []interface{}{"deadbeef", 0}, &out)
	require.Error(t, err)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -5, rpcErr.Code)
	require.Equal(t, 1, calls, "permanent RPC errors must not be retried")
}

func TestClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong", "creds")
	c.MaxElapsedTime = 200 * time.Millisecond
	_, err := c.GetBlockCount(context.Background())
	require.Error(t, err)
}
