package httpx

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/service"
	it "github.com/target/mmk-investigations/internal/testutil/investigationtest"
)

type sseEvent struct {
	name string
	ev   model.ProgressEvent
}

// readSSE parses events until the body ends.
func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var (
		out  []sseEvent
		name string
	)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev model.ProgressEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			out = append(out, sseEvent{name: name, ev: ev})
		}
	}
	return out
}

func openStream(t *testing.T, url string) *http.Response {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStreamReplaysFinishedInvestigation(t *testing.T) {
	ts := newTestServer(t, it.Options{})
	res := startInvestigation(t, ts, it.ProfileRequest("done"))
	ts.WaitFinished(t, res.Investigation.ID)

	resp := openStream(t, ts.URL+"/api/investigations/"+res.Investigation.ID+"/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, "completed", events[0].name)
	assert.True(t, events[0].ev.Replay)
	assert.True(t, events[0].ev.Completed)
	assert.Equal(t, 100, events[0].ev.Percent)
	assert.Equal(t, service.ReportRef(res.Investigation.ID), events[0].ev.ReportRef)
}

func TestStreamLiveInvestigation(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 1)
	ts := newTestServer(t, it.Options{Executors: map[string]capability.Executor{
		it.TikTokCapability: it.Block(release, started),
	}})

	res := startInvestigation(t, ts, it.ProfileRequest("live"))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking capability never started")
	}

	resp := openStream(t, ts.URL+"/api/investigations/"+res.Investigation.ID+"/events")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	close(release)

	events := readSSE(t, resp)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "completed", last.name)
	assert.False(t, last.ev.Replay)
	assert.Equal(t, 100, last.ev.Percent)

	var sawTikTok bool
	prev := 0
	for _, e := range events {
		assert.Equal(t, string(e.ev.Kind), e.name)
		assert.GreaterOrEqual(t, e.ev.Percent, prev, "percent must not decrease")
		prev = e.ev.Percent
		if e.ev.Kind == model.ProgressCapabilityCompleted {
			assert.Less(t, e.ev.Percent, 100)
			if e.ev.Capability == it.TikTokCapability {
				sawTikTok = true
				assert.Equal(t, model.ExecutionStatusSuccess, e.ev.Status)
			}
		}
	}
	assert.True(t, sawTikTok, "expected the released capability's completion event")
}

func TestStreamErrors(t *testing.T) {
	ts := newTestServer(t, it.Options{})
	ts.CreatePending(t, "elsewhere", it.GenericCapability)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/investigations/elsewhere/events", nil, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, service.ReasonStreamNotLive, decodeErrorBody(t, body).Reason)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/investigations/nope/events", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeErrorBody(t, body).Error)
}

func TestWriteSSEEvent(t *testing.T) {
	var b strings.Builder
	err := writeSSEEvent(&b, model.ProgressEvent{
		InvestigationID: "inv-1",
		Kind:            model.ProgressCapabilityCompleted,
		Capability:      "sherlock",
		Percent:         50,
	})
	require.NoError(t, err)
	out := b.String()
	assert.True(t, strings.HasPrefix(out, "event: capability_completed\ndata: {"), out)
	assert.True(t, strings.HasSuffix(out, "}\n\n"), out)
	assert.Contains(t, out, `"percent":50`)
}
