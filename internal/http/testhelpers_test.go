package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/testutil/investigationtest"
)

type testServer struct {
	*investigationtest.Stack
	URL string
}

// newTestServer serves the full router over an in-memory engine.
func newTestServer(t *testing.T, opts investigationtest.Options, tweak ...func(*RouterServices)) *testServer {
	t.Helper()
	stack := investigationtest.New(t, opts)
	svcs := RouterServices{
		Investigations: stack.Investigations,
		Callbacks:      stack.Callbacks,
		Registry:       stack.Registry,
		MaxBodyBytes:   1 << 20,
		Logger:         stack.Logger,
	}
	for _, fn := range tweak {
		fn(&svcs)
	}
	ts := httptest.NewServer(NewRouter(svcs))
	t.Cleanup(ts.Close)
	return &testServer{Stack: stack, URL: ts.URL}
}

// doJSON sends body (a string is sent verbatim) and returns the response with its body read.
func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decodeErrorBody(t *testing.T, raw []byte) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body
}
