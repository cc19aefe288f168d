package conversations

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodscout/server/internal/agent/model"
)

type fakeRepo struct {
	messages map[string][]*schema.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{messages: map[string][]*schema.Message{}}
}

func (f *fakeRepo) AddMessage(ctx context.Context, conversationID string, message *schema.Message) error {
	f.messages[conversationID] = append(f.messages[conversationID], message)
	return nil
}

func (f *fakeRepo) LoadHistory(ctx context.Context, conversationID string) (*model.ConversationHistory, error) {
	return &model.ConversationHistory{
		ConversationID: conversationID,
		Messages:       f.messages[conversationID],
	}, nil
}

func (f *fakeRepo) ClearHistory(ctx context.Context, conversationID string) error {
	delete(f.messages, conversationID)
	return nil
}

func (f *fakeRepo) GetMessageCount(ctx context.Context, conversationID string) (int, error) {
	return len(f.messages[conversationID]), nil
}

func newManager(repo model.ConversationRepository, maxTurns int) *MessagesManager {
	cfg := model.ConversationConfig{}
	cfg.Router.MaxTurns = maxTurns
	return NewMessagesManager(repo, cfg)
}

func TestProcessRouterMessagePersistsAndBuildsContext(t *testing.T) {
	repo := newFakeRepo()
	mm := newManager(repo, 5)

	out, err := mm.ProcessRouterMessage(context.Background(), "conv-1", "what serum should I buy?")
	require.NoError(t, err)

	// the user turn was persisted before building context
	count, _ := repo.GetMessageCount(context.Background(), "conv-1")
	assert.Equal(t, 1, count)

	assert.Contains(t, out, "<conversation_context>")
	assert.Contains(t, out, "UserMessage(what serum should I buy?)")
	assert.Contains(t, out, "<current_request>")
}

func TestProcessRouterMessageIncludesPriorTurns(t *testing.T) {
	repo := newFakeRepo()
	mm := newManager(repo, 5)

	require.NoError(t, repo.AddMessage(context.Background(), "conv-1", schema.UserMessage("hello")))
	require.NoError(t, mm.SaveResponse(context.Background(), "conv-1", "hi, how can I help?"))

	out, err := mm.ProcessRouterMessage(context.Background(), "conv-1", "any cheap moisturizers?")
	require.NoError(t, err)

	assert.Contains(t, out, "UserMessage(hello)")
	assert.Contains(t, out, "AssistantMessage(hi, how can I help?)")
	assert.Contains(t, out, "UserMessage(any cheap moisturizers?)")
}

func TestRouterContextTrimsToMaxTurns(t *testing.T) {
	repo := newFakeRepo()
	mm := newManager(repo, 2)

	require.NoError(t, repo.AddMessage(context.Background(), "conv-1", schema.UserMessage("first")))
	require.NoError(t, repo.AddMessage(context.Background(), "conv-1", schema.UserMessage("second")))

	out, err := mm.ProcessRouterMessage(context.Background(), "conv-1", "third")
	require.NoError(t, err)

	// only the two most recent messages survive the trim
	assert.NotContains(t, out, "UserMessage(first)")
	assert.Contains(t, out, "UserMessage(second)")
	assert.Contains(t, out, "UserMessage(third)")
}

func TestTrimTail(t *testing.T) {
	msgs := []*schema.Message{
		schema.UserMessage("a"),
		schema.UserMessage("b"),
		schema.UserMessage("c"),
	}

	assert.Len(t, trimTail(msgs, 5), 3)

	trimmed := trimTail(msgs, 2)
	require.Len(t, trimmed, 2)
	assert.Equal(t, "b", trimmed[0].Content)
	assert.Equal(t, "c", trimmed[1].Content)
}
