package chat

import (
	"errors"
	"testing"
	"time"

	"github.com/liliang-cn/doclens/internal/domain"
)

func TestState_StreamingAccumulation(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	s := NewState("s1")
	s, user := AddUserMessage(s, "What is it?", now)
	s, bot := StartBotMessage(s)

	if user.Timestamp == nil || !user.Timestamp.Equal(now) {
		t.Errorf("expected user timestamp %v, got %v", now, user.Timestamp)
	}
	if bot.Timestamp != nil {
		t.Errorf("expected no bot timestamp before completion")
	}
	if user.ID >= bot.ID {
		t.Errorf("expected ids ordered by creation, got %s then %s", user.ID, bot.ID)
	}

	var err error
	for _, ev := range []domain.StreamEvent{
		domain.TextDelta("ab"),
		domain.CitationSet([]domain.Citation{{ID: "a"}, {ID: "b"}}),
		domain.TextDelta("cd"),
		domain.CitationSet([]domain.Citation{{ID: "z"}}),
	} {
		s, err = ApplyEvent(s, bot.ID, ev)
		if err != nil {
			t.Fatalf("ApplyEvent failed: %v", err)
		}
	}

	msg, _ := s.Message(bot.ID)
	if msg.Text != "abcd" {
		t.Errorf("expected abcd, got %q", msg.Text)
	}
	if len(msg.Citations) != 1 || msg.Citations[0].ID != "z" {
		t.Errorf("expected citations replaced by [z], got %+v", msg.Citations)
	}

	done := now.Add(time.Second)
	s, err = Complete(s, bot.ID, done)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	msg, _ = s.Message(bot.ID)
	if msg.Status != domain.MessageStatusComplete || msg.Timestamp == nil || !msg.Timestamp.Equal(done) {
		t.Errorf("unexpected completed message %+v", msg)
	}

	if _, err := ApplyEvent(s, bot.ID, domain.TextDelta("late")); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest after completion, got %v", err)
	}
}

func TestState_TransitionsDoNotMutateInput(t *testing.T) {
	s := NewState("s1")
	s, bot := StartBotMessage(s)
	before := s

	after, err := ApplyEvent(s, bot.ID, domain.TextDelta("x"))
	if err != nil {
		t.Fatalf("ApplyEvent failed: %v", err)
	}
	if before.Messages[0].Text != "" {
		t.Errorf("input state was mutated: %q", before.Messages[0].Text)
	}
	if after.Messages[0].Text != "x" {
		t.Errorf("expected x, got %q", after.Messages[0].Text)
	}

	key := domain.HoverKey{MessageID: bot.ID, CitationID: "c", Number: 1, Instance: 1}
	hovered := Activate(after, key)
	if after.Hover != nil {
		t.Errorf("input state hover was mutated")
	}
	if hovered.Hover == nil || *hovered.Hover != key {
		t.Errorf("expected hover %v, got %v", key, hovered.Hover)
	}
}

func TestState_UnknownMessage(t *testing.T) {
	s := NewState("s1")
	if _, err := ApplyEvent(s, "missing", domain.TextDelta("x")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := Complete(s, "missing", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestState_Fail(t *testing.T) {
	s := NewState("s1")
	s, bot := StartBotMessage(s)
	s, _ = ApplyEvent(s, bot.ID, domain.TextDelta("partial"))
	s, err := Fail(s, bot.ID, "Error: boom", time.Now())
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	msg, _ := s.Message(bot.ID)
	if msg.Text != "Error: boom" || msg.Status != domain.MessageStatusError {
		t.Errorf("unexpected failed message %+v", msg)
	}
}

func TestHover_Exclusive(t *testing.T) {
	a := domain.HoverKey{MessageID: "m1", CitationID: "c1", Number: 1, Instance: 1}
	b := domain.HoverKey{MessageID: "m2", CitationID: "c9", Number: 2, Instance: 4}

	s := Activate(NewState("s1"), a)
	s = Activate(s, b)
	if s.Hover == nil || *s.Hover != b {
		t.Fatalf("expected b active, got %v", s.Hover)
	}

	// Leaving a after b took over must not clear b.
	s = Deactivate(s, a)
	if s.Hover == nil || *s.Hover != b {
		t.Errorf("expected b still active, got %v", s.Hover)
	}

	s = Deactivate(s, b)
	if s.Hover != nil {
		t.Errorf("expected no active hover, got %v", s.Hover)
	}
}

func TestConversation_AskApplyComplete(t *testing.T) {
	c := NewConversation(NewState("s1"))
	user, bot := c.Ask("hello")
	if user.Sender != domain.SenderUser || bot.Sender != domain.SenderBot {
		t.Fatalf("unexpected senders %s, %s", user.Sender, bot.Sender)
	}

	if err := c.Apply(bot.ID, domain.TextDelta("hi")); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	msg, err := c.Complete(bot.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if msg.Text != "hi" || msg.Timestamp == nil {
		t.Errorf("unexpected completed message %+v", msg)
	}

	key := domain.HoverKey{MessageID: bot.ID, CitationID: "c", Number: 1, Instance: 1}
	if active := c.Hover(key, true); active == nil || *active != key {
		t.Errorf("expected key active, got %v", active)
	}
	if active := c.Hover(key, false); active != nil {
		t.Errorf("expected no active key, got %v", active)
	}
	if n := len(c.Snapshot().Messages); n != 2 {
		t.Errorf("expected 2 messages, got %d", n)
	}
}
