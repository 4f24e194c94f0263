package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeModel is a model.BaseChatModel that echoes the input length.
type fakeModel struct {
	mu     sync.Mutex
	inputs [][]*schema.Message
	err    error
	cancel context.CancelFunc
}

func (f *fakeModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage("reply to "+input[len(input)-1].Content, nil), nil
}

func (f *fakeModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeModel) lastInput() []*schema.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

func TestEinoConversation_ReplaysHistory(t *testing.T) {
	t.Parallel()
	m := &fakeModel{}
	chat := NewEinoChat(m, "test-model", 0)

	conv, err := chat.NewConversation(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if conv.ID() == "" {
		t.Error("conversation id must not be empty")
	}

	reply, err := conv.Send(context.Background(), "first")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "reply to first" {
		t.Errorf("got %q", reply)
	}
	if _, err := conv.Send(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}

	in := m.lastInput()
	if len(in) != 3 {
		t.Fatalf("want 2 history messages plus the new one, got %d", len(in))
	}
	if in[0].Content != "first" || in[1].Content != "reply to first" || in[2].Content != "second" {
		t.Errorf("unexpected replay order: %q %q %q", in[0].Content, in[1].Content, in[2].Content)
	}
	if in[1].Role != schema.Assistant {
		t.Errorf("want assistant role for reply, got %s", in[1].Role)
	}
}

func TestEinoConversation_FailureDoesNotCommit(t *testing.T) {
	t.Parallel()
	m := &fakeModel{err: errors.New("503")}
	conv, _ := NewEinoChat(m, "m", 0).NewConversation(context.Background(), "")

	if _, err := conv.Send(context.Background(), "hello"); err == nil {
		t.Fatal("want error")
	}
	if n := conv.(*einoConversation).turns(); n != 0 {
		t.Errorf("failed send committed %d messages", n)
	}
}

func TestEinoConversation_AbandonedSendDoesNotCommit(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeModel{cancel: cancel}
	conv, _ := NewEinoChat(m, "m", 0).NewConversation(context.Background(), "")

	if _, err := conv.Send(ctx, "hello"); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if n := conv.(*einoConversation).turns(); n != 0 {
		t.Errorf("abandoned send committed %d messages", n)
	}
}

func TestEinoConversation_TrimsHistoryToBudget(t *testing.T) {
	t.Parallel()
	m := &fakeModel{}
	// Each short message costs about 6 tokens; 20 leaves room for the new
	// message and at most two prior ones.
	conv, _ := NewEinoChat(m, "m", 20).NewConversation(context.Background(), "")

	for _, msg := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		if _, err := conv.Send(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
	}
	in := m.lastInput()
	if len(in) >= 7 {
		t.Errorf("history was not trimmed, replayed %d messages", len(in))
	}
	if in[len(in)-1].Content != "dddd" {
		t.Error("current message must always be sent")
	}
	for _, msg := range in[:len(in)-1] {
		if strings.Contains(msg.Content, "aaaa") {
			t.Error("oldest turn should have been trimmed first")
		}
	}
}

func TestEinoChat_ConversationsAreIndependent(t *testing.T) {
	t.Parallel()
	m := &fakeModel{}
	chat := NewEinoChat(m, "m", 0)
	a, _ := chat.NewConversation(context.Background(), "")
	b, _ := chat.NewConversation(context.Background(), "")

	if a.ID() == b.ID() {
		t.Fatal("conversation ids must differ")
	}
	_, _ = a.Send(context.Background(), "for a")
	_, _ = b.Send(context.Background(), "for b")

	if len(m.lastInput()) != 1 {
		t.Error("conversation b must not see a's history")
	}
}
