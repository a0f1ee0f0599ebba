package service

import (
	"testing"
	"time"

	"medassist-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestMergeTimelineInterleavesByCreatedAt(t *testing.T) {
	messages := []model.ConversationMessage{
		{ID: 1, Role: model.RoleMessageUser, Content: "早", CreatedAt: mustParse(t, "2026-08-01T08:00:00Z")},
		{ID: 2, Role: model.RoleMessageAgent, Content: "早上好", CreatedAt: mustParse(t, "2026-08-01T08:00:10Z")},
	}
	images := []model.ImageCapture{
		{ID: 10, CreatedAt: mustParse(t, "2026-08-01T08:00:05Z")},
	}

	timeline := MergeTimeline(messages, images)
	require.Len(t, timeline, 3)
	assert.Equal(t, model.TimelineKindMessage, timeline[0].Kind)
	assert.Equal(t, model.TimelineKindImage, timeline[1].Kind)
	assert.Equal(t, model.TimelineKindMessage, timeline[2].Kind)
	assert.Equal(t, uint(10), timeline[1].Image.ID)
}

func TestMergeTimelineIsSortedForAnyInput(t *testing.T) {
	base := mustParse(t, "2026-08-01T08:00:00Z")
	messages := []model.ConversationMessage{
		{ID: 3, CreatedAt: base.Add(9 * time.Second)},
		{ID: 1, CreatedAt: base.Add(1 * time.Second)},
		{ID: 2, CreatedAt: base.Add(5 * time.Second)},
	}
	images := []model.ImageCapture{
		{ID: 11, CreatedAt: base.Add(7 * time.Second)},
		{ID: 10, CreatedAt: base.Add(3 * time.Second)},
	}

	timeline := MergeTimeline(messages, images)
	require.Len(t, timeline, 5)
	for i := 1; i < len(timeline); i++ {
		assert.False(t, timeline[i].CreatedAt.Before(timeline[i-1].CreatedAt))
	}
}

func TestMergeTimelineMessageWinsOnEqualTimestamp(t *testing.T) {
	ts := mustParse(t, "2026-08-01T08:00:00Z")
	messages := []model.ConversationMessage{{ID: 1, CreatedAt: ts}}
	images := []model.ImageCapture{{ID: 10, CreatedAt: ts}}

	timeline := MergeTimeline(messages, images)
	require.Len(t, timeline, 2)
	assert.Equal(t, model.TimelineKindMessage, timeline[0].Kind)
	assert.Equal(t, model.TimelineKindImage, timeline[1].Kind)
}

func TestMergeTimelineEmptyCollections(t *testing.T) {
	assert.Empty(t, MergeTimeline(nil, nil))

	onlyMessages := MergeTimeline([]model.ConversationMessage{
		{ID: 1, CreatedAt: mustParse(t, "2026-08-01T08:00:00Z")},
	}, nil)
	require.Len(t, onlyMessages, 1)
	assert.Equal(t, model.TimelineKindMessage, onlyMessages[0].Kind)

	onlyImages := MergeTimeline(nil, []model.ImageCapture{
		{ID: 10, CreatedAt: mustParse(t, "2026-08-01T08:00:00Z")},
	})
	require.Len(t, onlyImages, 1)
	assert.Equal(t, model.TimelineKindImage, onlyImages[0].Kind)
}
