package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/testutil"
)

func TestProgressRelay_RoundTrip(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	relay, err := NewProgressRelay(ProgressRelayOptions{
		Client:        client,
		ChannelPrefix: "test:" + uuid.NewString() + ":",
	})
	require.NoError(t, err)
	defer func() { _ = relay.Close(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, release, err := relay.Subscribe(ctx, "inv-1")
	require.NoError(t, err)
	defer release()

	relay.Publish(ctx, model.ProgressEvent{InvestigationID: "inv-1", Kind: model.ProgressRunning})
	relay.Publish(ctx, model.ProgressEvent{InvestigationID: "inv-other", Kind: model.ProgressRunning})
	relay.Publish(ctx, model.ProgressEvent{
		InvestigationID: "inv-1",
		Kind:            model.ProgressCapabilityCompleted,
		Capability:      "sherlock",
		Percent:         50,
	})
	relay.Publish(ctx, model.ProgressEvent{
		InvestigationID: "inv-1",
		Kind:            model.ProgressCompleted,
		Percent:         100,
		Completed:       true,
	})

	var got []model.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, model.ProgressRunning, got[0].Kind)
	assert.Equal(t, "sherlock", got[1].Capability)
	assert.Equal(t, 50, got[1].Percent)
	assert.True(t, got[2].Completed)
	assert.Equal(t, 100, got[2].Percent)
}

func TestProgressRelay_ReleaseClosesStream(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	relay, err := NewProgressRelay(ProgressRelayOptions{Client: client, ChannelPrefix: "test:" + uuid.NewString() + ":"})
	require.NoError(t, err)
	defer func() { _ = relay.Close(context.Background()) }()

	events, release, err := relay.Subscribe(context.Background(), "inv-2")
	require.NoError(t, err)
	release()
	release()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed after release")
	}
}

func TestNewProgressRelay_RequiresClient(t *testing.T) {
	_, err := NewProgressRelay(ProgressRelayOptions{})
	require.Error(t, err)
}

func TestProgressRelay_PublishAfterClose(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	relay, err := NewProgressRelay(ProgressRelayOptions{Client: client})
	require.NoError(t, err)
	assert.Equal(t, "investigations:progress:abc", relay.Channel("abc"))

	require.NoError(t, relay.Close(context.Background()))
	require.NoError(t, relay.Close(context.Background()))
	relay.Publish(context.Background(), model.ProgressEvent{InvestigationID: "abc"})
}
