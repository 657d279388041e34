package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/domain/model"
)

func event(kind model.ProgressEventKind, percent int) model.ProgressEvent {
	return model.ProgressEvent{InvestigationID: "inv-1", Kind: kind, Percent: percent}
}

func collect(sub *Subscription) []model.ProgressEvent {
	var out []model.ProgressEvent
	for ev := range sub.Events() {
		out = append(out, ev)
	}
	return out
}

func TestHubOpenTwice(t *testing.T) {
	h := NewHub(HubOptions{})
	require.NoError(t, h.Open("inv-1"))
	require.ErrorIs(t, h.Open("inv-1"), ErrStreamExists)
	assert.True(t, h.Active("inv-1"))
}

func TestHubSubscribeWithoutTopic(t *testing.T) {
	h := NewHub(HubOptions{})
	_, err := h.Subscribe("missing")
	require.ErrorIs(t, err, ErrStreamNotActive)
	assert.False(t, h.Publish("missing", event(model.ProgressRunning, 0)))
}

func TestHubFanOutEndsWithTerminal(t *testing.T) {
	h := NewHub(HubOptions{})
	require.NoError(t, h.Open("inv-1"))

	subs := make([]*Subscription, 3)
	for i := range subs {
		s, err := h.Subscribe("inv-1")
		require.NoError(t, err)
		subs[i] = s
	}

	require.True(t, h.Publish("inv-1", event(model.ProgressRunning, 0)))
	require.True(t, h.Publish("inv-1", event(model.ProgressCapabilityCompleted, 50)))
	require.True(t, h.Publish("inv-1", event(model.ProgressCompleted, 100)))

	var wg sync.WaitGroup
	results := make([][]model.ProgressEvent, len(subs))
	for i, s := range subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = collect(s)
		}()
	}
	wg.Wait()

	for _, got := range results {
		require.Len(t, got, 3)
		assert.Equal(t, model.ProgressCompleted, got[2].Kind)
	}

	assert.False(t, h.Active("inv-1"), "terminal event tears the topic down")
	assert.False(t, h.Publish("inv-1", event(model.ProgressRunning, 0)))
	_, err := h.Subscribe("inv-1")
	require.ErrorIs(t, err, ErrStreamNotActive)

	require.NoError(t, h.Open("inv-1"), "a torn down topic can be reopened")
}

func TestHubSubscribeDoesNotReplay(t *testing.T) {
	h := NewHub(HubOptions{})
	require.NoError(t, h.Open("inv-1"))
	h.Publish("inv-1", event(model.ProgressRunning, 0))

	sub, err := h.Subscribe("inv-1")
	require.NoError(t, err)
	h.Publish("inv-1", event(model.ProgressFailed, 40))

	got := collect(sub)
	require.Len(t, got, 1)
	assert.Equal(t, model.ProgressFailed, got[0].Kind)
}

func TestHubSlowSubscriberStillGetsTerminal(t *testing.T) {
	h := NewHub(HubOptions{Buffer: 2})
	require.NoError(t, h.Open("inv-1"))
	sub, err := h.Subscribe("inv-1")
	require.NoError(t, err)

	for i := range 5 {
		h.Publish("inv-1", event(model.ProgressCapabilityCompleted, i*10))
	}
	h.Publish("inv-1", event(model.ProgressCompleted, 100))

	got := collect(sub)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 2)
	assert.Equal(t, model.ProgressCompleted, got[len(got)-1].Kind)
}

func TestSubscriptionClose(t *testing.T) {
	h := NewHub(HubOptions{})
	require.NoError(t, h.Open("inv-1"))
	sub, err := h.Subscribe("inv-1")
	require.NoError(t, err)
	other, err := h.Subscribe("inv-1")
	require.NoError(t, err)

	h.Publish("inv-1", event(model.ProgressRunning, 0))
	sub.Close()
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	h.Publish("inv-1", event(model.ProgressCompleted, 100))
	assert.Len(t, collect(other), 2)
	other.Close()
}

func TestHubDiscardAndCloseAll(t *testing.T) {
	h := NewHub(HubOptions{})
	require.NoError(t, h.Open("inv-1"))
	require.NoError(t, h.Open("inv-2"))
	s1, err := h.Subscribe("inv-1")
	require.NoError(t, err)
	s2, err := h.Subscribe("inv-2")
	require.NoError(t, err)

	h.Publish("inv-1", event(model.ProgressRunning, 0))
	h.Discard("inv-1")
	assert.Empty(t, collect(s1), "discard drops buffered events")
	assert.False(t, h.Active("inv-1"))
	h.Discard("inv-1")

	h.CloseAll()
	assert.Empty(t, collect(s2))
	assert.False(t, h.Active("inv-2"))
}
