package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRecordsInOrder(t *testing.T) {
	t.Parallel()

	p := New()
	ctx := context.Background()

	id1, err := p.Publish(ctx, "scrape-completed", map[string]any{"match_id": "m-1"})
	require.NoError(t, err)
	id2, err := p.Publish(ctx, "scrape-completed", map[string]any{"match_id": "m-2"})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "scrape-completed", msgs[0].Topic)
}

func TestByTopicFilters(t *testing.T) {
	t.Parallel()

	p := New()
	ctx := context.Background()
	_, err := p.Publish(ctx, "scrape-completed", "a")
	require.NoError(t, err)
	_, err = p.Publish(ctx, "draw-activated", "b")
	require.NoError(t, err)

	completed := p.ByTopic("scrape-completed")
	require.Len(t, completed, 1)
	require.Equal(t, "a", completed[0].Payload)
	require.Empty(t, p.ByTopic("unknown"))
}

func TestReset(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "scrape-completed", "a")
	require.NoError(t, err)
	p.Reset()
	require.Empty(t, p.Messages())
}
