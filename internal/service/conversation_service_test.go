package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"medassist-go/internal/model"
	"medassist-go/pkg/log"
	"medassist-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	m.Run()
}

// fakeConvRepo 是 ConversationRepository 的内存实现。
type fakeConvRepo struct {
	conversations map[uint]*model.Conversation
	messages      []model.ConversationMessage
	nextID        uint
	endedIDs      []uint
	deletedIDs    []uint
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{conversations: make(map[uint]*model.Conversation)}
}

func (r *fakeConvRepo) Create(conv *model.Conversation) error {
	r.nextID++
	conv.ID = r.nextID
	conv.StartedAt = time.Now()
	r.conversations[conv.ID] = conv
	return nil
}

func (r *fakeConvRepo) FindByID(id uint) (*model.Conversation, error) {
	conv, ok := r.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := *conv
	return &out, nil
}

func (r *fakeConvRepo) FindByUID(uid string) (*model.Conversation, error) {
	for _, conv := range r.conversations {
		if conv.UID == uid {
			out := *conv
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeConvRepo) FindByUserID(userID uint, offset, limit int) ([]model.Conversation, int64, error) {
	var out []model.Conversation
	for _, conv := range r.conversations {
		if conv.UserID == userID {
			out = append(out, *conv)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeConvRepo) MarkEnded(id uint, endedAt time.Time) error {
	conv, ok := r.conversations[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conv.Status = model.ConversationEnded
	conv.EndedAt = &endedAt
	r.endedIDs = append(r.endedIDs, id)
	return nil
}

func (r *fakeConvRepo) UpdateTitleAndSummary(id uint, title, summary, transcript string) error {
	return nil
}

func (r *fakeConvRepo) Delete(id uint) error {
	delete(r.conversations, id)
	r.deletedIDs = append(r.deletedIDs, id)
	return nil
}

func (r *fakeConvRepo) CreateMessage(msg *model.ConversationMessage) error {
	msg.ID = uint(len(r.messages) + 1)
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeConvRepo) FindMessages(conversationID uint) ([]model.ConversationMessage, error) {
	var out []model.ConversationMessage
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) FindFirstMessages(conversationID uint, limit int) ([]model.ConversationMessage, error) {
	out, _ := r.FindMessages(conversationID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeConvRepo) FindLatestCameraMessage(conversationID uint) (*model.ConversationMessage, error) {
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ConversationID == conversationID && r.messages[i].Role == model.RoleMessageCamera {
			out := r.messages[i]
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// fakeImageRepo 是 ImageRepository 的内存实现。
type fakeImageRepo struct {
	captures []model.ImageCapture
}

func (r *fakeImageRepo) Create(capture *model.ImageCapture) error {
	capture.ID = uint(len(r.captures) + 1)
	r.captures = append(r.captures, *capture)
	return nil
}

func (r *fakeImageRepo) FindByID(id uint) (*model.ImageCapture, error) {
	for _, c := range r.captures {
		if c.ID == id {
			out := c
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeImageRepo) FindByConversationID(conversationID uint) ([]model.ImageCapture, error) {
	var out []model.ImageCapture
	for _, c := range r.captures {
		if c.ConversationID != nil && *c.ConversationID == conversationID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeImageRepo) FindByUserID(userID uint, offset, limit int) ([]model.ImageCapture, int64, error) {
	var out []model.ImageCapture
	for _, c := range r.captures {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeImageRepo) Delete(id uint) error { return nil }

// fakeObsCache 是 ObservationCache 的内存实现。
type fakeObsCache struct {
	values map[uint]string
	setErr error
}

func newFakeObsCache() *fakeObsCache {
	return &fakeObsCache{values: make(map[uint]string)}
}

func (c *fakeObsCache) SetLatest(ctx context.Context, conversationID uint, description string) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.values[conversationID] = description
	return nil
}

func (c *fakeObsCache) GetLatest(ctx context.Context, conversationID uint) (string, error) {
	return c.values[conversationID], nil
}

type convServiceFixture struct {
	repo      *fakeConvRepo
	imageRepo *fakeImageRepo
	cache     *fakeObsCache
	published []tasks.ConversationEndedTask
	svc       ConversationService
}

func newConvServiceFixture(publishErr error) *convServiceFixture {
	f := &convServiceFixture{
		repo:      newFakeConvRepo(),
		imageRepo: &fakeImageRepo{},
		cache:     newFakeObsCache(),
	}
	f.svc = NewConversationService(f.repo, f.imageRepo, f.cache, func(task tasks.ConversationEndedTask) error {
		if publishErr != nil {
			return publishErr
		}
		f.published = append(f.published, task)
		return nil
	})
	return f
}

func TestCreateConversationStartsActive(t *testing.T) {
	f := newConvServiceFixture(nil)

	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)
	assert.NotEmpty(t, conv.UID)
	assert.Equal(t, model.ConversationActive, conv.Status)
	assert.Equal(t, uint(1), conv.UserID)
}

func TestAppendMessageRejectsForeignConversation(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 2)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(context.Background(), conv.ID, 1, model.RoleMessageUser, "hello", nil, nil)
	assert.ErrorIs(t, err, ErrNotOwner)
	// 校验失败不产生任何写入
	assert.Empty(t, f.repo.messages)
}

func TestAppendMessageMissingConversation(t *testing.T) {
	f := newConvServiceFixture(nil)

	_, err := f.svc.AppendMessage(context.Background(), 42, 1, model.RoleMessageUser, "hello", nil, nil)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAppendCameraMessageUpdatesObservationCache(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(context.Background(), conv.ID, 1, model.RoleMessageCamera, "药瓶放在桌上", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "药瓶放在桌上", f.cache.values[conv.ID])
}

func TestAppendCameraMessageSurvivesCacheFailure(t *testing.T) {
	f := newConvServiceFixture(nil)
	f.cache.setErr = errors.New("redis down")
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	msg, err := f.svc.AppendMessage(context.Background(), conv.ID, 1, model.RoleMessageCamera, "药瓶放在桌上", nil, nil)
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)
}

func TestEndConversationPublishesTask(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.EndConversation(context.Background(), conv.ID, 1))
	require.Len(t, f.published, 1)
	assert.Equal(t, conv.ID, f.published[0].ConversationID)
	assert.Equal(t, conv.UID, f.published[0].ConversationUID)
}

func TestEndConversationIdempotent(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.EndConversation(context.Background(), conv.ID, 1))
	require.NoError(t, f.svc.EndConversation(context.Background(), conv.ID, 1))
	// 第二次结束不再投递任务
	assert.Len(t, f.published, 1)
	assert.Len(t, f.repo.endedIDs, 1)
}

func TestEndConversationSurvivesPublishFailure(t *testing.T) {
	f := newConvServiceFixture(errors.New("kafka unreachable"))
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	// 投递失败不影响挂断本身
	require.NoError(t, f.svc.EndConversation(context.Background(), conv.ID, 1))
	assert.Len(t, f.repo.endedIDs, 1)
}

func TestGetDetailMergesMessagesAndImages(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(context.Background(), conv.ID, 1, model.RoleMessageUser, "hello", nil, nil)
	require.NoError(t, err)
	require.NoError(t, f.imageRepo.Create(&model.ImageCapture{
		UserID:         1,
		ConversationID: &conv.ID,
		CreatedAt:      time.Now().Add(time.Second),
	}))

	detail, err := f.svc.GetDetail(context.Background(), conv.ID, 1)
	require.NoError(t, err)
	require.Len(t, detail.Timeline, 2)
	assert.Equal(t, model.TimelineKindMessage, detail.Timeline[0].Kind)
	assert.Equal(t, model.TimelineKindImage, detail.Timeline[1].Kind)
}

func TestDeleteConversationChecksOwnership(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 2)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteConversation(context.Background(), conv.ID, 1), ErrNotOwner)
	require.NoError(t, f.svc.DeleteConversation(context.Background(), conv.ID, 2))
	assert.Equal(t, []uint{conv.ID}, f.repo.deletedIDs)
}

func TestLatestObservationPrefersCache(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)
	f.cache.values[conv.ID] = "缓存里的观察"

	desc, err := f.svc.LatestObservation(context.Background(), conv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "缓存里的观察", desc)
}

func TestLatestObservationFallsBackToDatabase(t *testing.T) {
	f := newConvServiceFixture(nil)
	f.cache.setErr = errors.New("redis down")
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	_, err = f.svc.AppendMessage(context.Background(), conv.ID, 1, model.RoleMessageCamera, "数据库里的观察", nil, nil)
	require.NoError(t, err)

	desc, err := f.svc.LatestObservation(context.Background(), conv.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "数据库里的观察", desc)
}

func TestLatestObservationEmptyWhenNoCameraMessage(t *testing.T) {
	f := newConvServiceFixture(nil)
	conv, err := f.svc.CreateConversation(context.Background(), 1)
	require.NoError(t, err)

	desc, err := f.svc.LatestObservation(context.Background(), conv.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, desc)
}
