package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow/internal/model"
	"leadflow/internal/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func viewed() model.DomainEvent {
	return model.DomainEvent{
		ID:         "evt-9",
		Kind:       model.KindCampaignViewed,
		UserID:     "u-9",
		CampaignID: "c-3",
		Tenant:     "acme",
		OccurredAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestTrackEnqueuesCloudEvent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := queue.NewRedisQueue(client, queue.Options{})
	tracker := NewTracker(q, zap.NewNop())
	require.NoError(t, tracker.Track(context.Background(), viewed()))

	ce, err := q.Consume(context.Background(), queue.TopicAnalytics, time.Second)
	require.NoError(t, err)
	got, err := model.FromCloudEvent(ce)
	require.NoError(t, err)
	assert.Equal(t, "u-9", got.UserID)
	assert.Equal(t, "acme", ce.Extensions()["tenant"])
}

func TestTrackRequiresUser(t *testing.T) {
	tracker := NewTracker(queue.NewMemoryQueue(queue.Options{}), nil)
	ev := viewed()
	ev.UserID = ""
	assert.True(t, errors.Is(tracker.Track(context.Background(), ev), ErrMissingUser))
}

func TestTrackSurfacesQueueFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	tracker := NewTracker(queue.NewRedisQueue(client, queue.Options{}), nil)
	err = tracker.Track(context.Background(), viewed())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue analytics event")
}
