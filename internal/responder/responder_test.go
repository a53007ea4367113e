package responder

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konvohq/konvo/internal/aiagents"
	"github.com/konvohq/konvo/internal/conversations"
	"github.com/konvohq/konvo/internal/llm"
	"github.com/konvohq/konvo/internal/messages"
)

type fakeAgents struct {
	byID      map[string]aiagents.Agent
	byChannel map[string]aiagents.Agent
}

func (f *fakeAgents) GetByID(_ context.Context, id string) (aiagents.Agent, error) {
	agent, ok := f.byID[id]
	if !ok {
		return aiagents.Agent{}, aiagents.ErrNotFound
	}
	return agent, nil
}

func (f *fakeAgents) FindActiveForChannel(_ context.Context, channelID string) (aiagents.Agent, error) {
	agent, ok := f.byChannel[channelID]
	if !ok {
		return aiagents.Agent{}, aiagents.ErrNotFound
	}
	return agent, nil
}

type fakeHistory struct {
	items []messages.Message
}

func (f *fakeHistory) History(_ context.Context, _ string, _ int) ([]messages.Message, error) {
	return f.items, nil
}

type fakeAdopter struct {
	adopted []string
}

func (f *fakeAdopter) AdoptAgent(_ context.Context, _, agentID string) error {
	f.adopted = append(f.adopted, agentID)
	return nil
}

type fakeMessenger struct {
	sent   []string
	labels []string
}

func (f *fakeMessenger) Reply(_ context.Context, _, senderLabel, text string) error {
	f.sent = append(f.sent, text)
	f.labels = append(f.labels, senderLabel)
	return nil
}

type fakeCompleter struct {
	reply  string
	err    error
	called bool
	last   llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.called = true
	f.last = req
	return f.reply, f.err
}

func supportAgent() aiagents.Agent {
	return aiagents.Agent{
		ID:               "agent-1",
		Name:             "Ava",
		SystemPrompt:     "You help customers of Acme.",
		ContextInfo:      "Opening hours: 9-18.",
		Model:            "gpt-4o-mini",
		Temperature:      0.4,
		TransferKeywords: []string{"humano", "agente"},
		Active:           true,
	}
}

func newTestResponder(agents *fakeAgents, completer *fakeCompleter) (*Responder, *fakeAdopter, *fakeMessenger) {
	adopter := &fakeAdopter{}
	messenger := &fakeMessenger{}
	r := New(agents, &fakeHistory{}, adopter, messenger, completer, slog.Default())
	return r, adopter, messenger
}

func request(ownerID string) Request {
	return Request{
		Conversation: conversations.Conversation{ID: "conv-1", HandledByAIAgentID: ownerID},
		ChannelID:    "chan-1",
		Text:         "what are your opening hours?",
	}
}

func TestRespondNoAgentIsUnhandled(t *testing.T) {
	completer := &fakeCompleter{}
	r, _, messenger := newTestResponder(&fakeAgents{}, completer)

	result, err := r.Respond(context.Background(), request(""))
	require.NoError(t, err)

	assert.False(t, result.Handled)
	assert.False(t, completer.called)
	assert.Empty(t, messenger.sent)
}

func TestRespondKeywordSkipsLLM(t *testing.T) {
	completer := &fakeCompleter{reply: "should not be used"}
	agents := &fakeAgents{byChannel: map[string]aiagents.Agent{"chan-1": supportAgent()}}
	r, adopter, messenger := newTestResponder(agents, completer)

	req := request("")
	req.Text = "Quiero hablar con un HUMANO"
	result, err := r.Respond(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Handled)
	assert.True(t, result.TransferToHuman)
	assert.False(t, completer.called, "keyword path must not invoke the model")
	assert.Empty(t, adopter.adopted, "handoff must not adopt the agent")
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, handoffNotice, messenger.sent[0])
}

func TestRespondAdoptsChannelAgentAndReplies(t *testing.T) {
	completer := &fakeCompleter{reply: "We are open 9 to 18."}
	agents := &fakeAgents{byChannel: map[string]aiagents.Agent{"chan-1": supportAgent()}}
	r, adopter, messenger := newTestResponder(agents, completer)

	result, err := r.Respond(context.Background(), request(""))
	require.NoError(t, err)

	assert.True(t, result.Handled)
	assert.False(t, result.TransferToHuman)
	assert.Equal(t, []string{"agent-1"}, adopter.adopted)
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "We are open 9 to 18.", messenger.sent[0])
	assert.Equal(t, "Ava", messenger.labels[0])
	assert.Equal(t, "gpt-4o-mini", completer.last.Model)
	require.NotEmpty(t, completer.last.Messages)
	assert.Equal(t, llm.RoleSystem, completer.last.Messages[0].Role)
	assert.Contains(t, completer.last.Messages[0].Content, TransferSentinel)
	assert.Contains(t, completer.last.Messages[0].Content, "Opening hours: 9-18.")
}

func TestRespondExistingOwnerIsNotReadopted(t *testing.T) {
	completer := &fakeCompleter{reply: "Sure."}
	agents := &fakeAgents{byID: map[string]aiagents.Agent{"agent-1": supportAgent()}}
	r, adopter, messenger := newTestResponder(agents, completer)

	result, err := r.Respond(context.Background(), request("agent-1"))
	require.NoError(t, err)

	assert.True(t, result.Handled)
	assert.Empty(t, adopter.adopted)
	assert.Len(t, messenger.sent, 1)
}

func TestRespondInactiveOwnerIsUnhandled(t *testing.T) {
	agent := supportAgent()
	agent.Active = false
	completer := &fakeCompleter{reply: "Sure."}
	agents := &fakeAgents{byID: map[string]aiagents.Agent{"agent-1": agent}}
	r, _, messenger := newTestResponder(agents, completer)

	result, err := r.Respond(context.Background(), request("agent-1"))
	require.NoError(t, err)

	assert.False(t, result.Handled)
	assert.False(t, completer.called)
	assert.Empty(t, messenger.sent)
}

func TestRespondSentinelTransfersAndStrips(t *testing.T) {
	completer := &fakeCompleter{reply: "Let me get someone. " + TransferSentinel}
	agents := &fakeAgents{byChannel: map[string]aiagents.Agent{"chan-1": supportAgent()}}
	r, _, messenger := newTestResponder(agents, completer)

	result, err := r.Respond(context.Background(), request(""))
	require.NoError(t, err)

	assert.True(t, result.Handled)
	assert.True(t, result.TransferToHuman)
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "Let me get someone.", messenger.sent[0])
}

func TestRespondBareSentinelSendsNothing(t *testing.T) {
	completer := &fakeCompleter{reply: TransferSentinel}
	agents := &fakeAgents{byChannel: map[string]aiagents.Agent{"chan-1": supportAgent()}}
	r, _, messenger := newTestResponder(agents, completer)

	result, err := r.Respond(context.Background(), request(""))
	require.NoError(t, err)

	assert.True(t, result.TransferToHuman)
	assert.Empty(t, messenger.sent)
}

func TestRespondEmptyReplyIsUnhandled(t *testing.T) {
	completer := &fakeCompleter{reply: "   "}
	agents := &fakeAgents{byChannel: map[string]aiagents.Agent{"chan-1": supportAgent()}}
	r, _, messenger := newTestResponder(agents, completer)

	result, err := r.Respond(context.Background(), request(""))
	require.NoError(t, err)

	assert.False(t, result.Handled)
	assert.Empty(t, messenger.sent)
}

func TestRespondCompletionFailureIsSwallowed(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("provider timeout")}
	agents := &fakeAgents{byChannel: map[string]aiagents.Agent{"chan-1": supportAgent()}}
	r, _, messenger := newTestResponder(agents, completer)

	result, err := r.Respond(context.Background(), request(""))
	require.NoError(t, err, "model failure must not propagate")

	assert.False(t, result.Handled)
	assert.Empty(t, messenger.sent)
}

func TestRespondMapsHistoryToRoles(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	agents := &fakeAgents{byChannel: map[string]aiagents.Agent{"chan-1": supportAgent()}}
	adopter := &fakeAdopter{}
	messenger := &fakeMessenger{}
	history := &fakeHistory{items: []messages.Message{
		{Direction: messages.DirectionInbound, Content: "hi"},
		{Direction: messages.DirectionOutbound, Content: "hello!"},
		{Direction: messages.DirectionInbound, Content: "what are your opening hours?"},
	}}
	r := New(agents, history, adopter, messenger, completer, slog.Default())

	_, err := r.Respond(context.Background(), request(""))
	require.NoError(t, err)

	require.Len(t, completer.last.Messages, 4)
	assert.Equal(t, llm.RoleUser, completer.last.Messages[1].Role)
	assert.Equal(t, llm.RoleAssistant, completer.last.Messages[2].Role)
	assert.Equal(t, llm.RoleUser, completer.last.Messages[3].Role)
	assert.Equal(t, "what are your opening hours?", completer.last.Messages[3].Content)
}
