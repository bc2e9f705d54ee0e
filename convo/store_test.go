package convo

import (
	"fmt"
	"testing"

	"vandvik/models"
)

func TestCreateSeedsGreeting(t *testing.T) {
	s := NewStore("hello there")
	c := s.Create()
	if len(c.Messages) != 1 {
		t.Fatalf("expected one seeded message, got: %d", len(c.Messages))
	}
	if c.Messages[0].Author != models.AuthorCompanion {
		t.Fatalf("expected companion greeting, got author: %v", c.Messages[0].Author)
	}
	if c.Messages[0].Text != "hello there" {
		t.Fatalf("unexpected greeting: %q", c.Messages[0].Text)
	}
	if c.Title != models.DefaultTitle {
		t.Fatalf("unexpected title: %q", c.Title)
	}
	if s.ActiveID() != c.ID {
		t.Fatalf("new conversation should be active")
	}
}

func TestCreatePrepends(t *testing.T) {
	s := NewStore("")
	first := s.Create()
	second := s.Create()
	list := s.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got: %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first order")
	}
}

func TestSelectAbsentIsNoop(t *testing.T) {
	s := NewStore("")
	c := s.Create()
	if s.Select("no-such-id") {
		t.Fatalf("select of absent id should report false")
	}
	if s.ActiveID() != c.ID {
		t.Fatalf("active pointer moved on failed select")
	}
}

func TestDelete(t *testing.T) {
	cases := []struct {
		name         string
		deleteActive bool
	}{
		{name: "delete inactive keeps active", deleteActive: false},
		{name: "delete active falls to next", deleteActive: true},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("run_%d_%s", i, tc.name), func(t *testing.T) {
			s := NewStore("")
			older := s.Create()
			newer := s.Create()
			target := older.ID
			if tc.deleteActive {
				target = newer.ID
			}
			if created := s.Delete(target); created != nil {
				t.Fatalf("no fresh conversation expected while one remains")
			}
			if s.Len() != 1 {
				t.Fatalf("expected 1 conversation, got: %d", s.Len())
			}
			want := newer.ID
			if tc.deleteActive {
				want = older.ID
			}
			if s.ActiveID() != want {
				t.Fatalf("active pointer references wrong id: %s", s.ActiveID())
			}
		})
	}
}

func TestDeleteLastCreatesFresh(t *testing.T) {
	s := NewStore("")
	only := s.Create()
	created := s.Delete(only.ID)
	if created == nil {
		t.Fatalf("deleting the last conversation should yield a fresh one")
	}
	if created.ID == only.ID {
		t.Fatalf("fresh conversation reuses deleted id")
	}
	if s.ActiveID() != created.ID {
		t.Fatalf("fresh conversation should be active")
	}
	if len(created.Messages) != 1 {
		t.Fatalf("fresh conversation missing greeting")
	}
}

func TestAppendMessagesAtomic(t *testing.T) {
	s := NewStore("")
	c := s.Create()
	err := s.AppendMessages(c.ID,
		models.Message{Author: models.AuthorUser, Text: "hi"},
		models.Message{Author: models.AuthorCompanion, Text: ""},
	)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	got, _ := s.Get(c.ID)
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got: %d", len(got.Messages))
	}
	if err := s.AppendMessages("gone", models.Message{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestMutateLastMessage(t *testing.T) {
	s := NewStore("")
	c := s.Create()
	if err := s.AppendMessages(c.ID,
		models.Message{Author: models.AuthorUser, Text: "hi"},
		models.Message{Author: models.AuthorCompanion, Text: ""},
	); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	// cumulative rewrites, as a stream would produce
	for _, text := range []string{"He", "Hello", "Hello!"} {
		if err := s.MutateLastMessage(c.ID, text); err != nil {
			t.Fatalf("mutate failed: %v", err)
		}
	}
	got, _ := s.Get(c.ID)
	last := got.Messages[len(got.Messages)-1]
	if last.Text != "Hello!" {
		t.Fatalf("expected final text, got: %q", last.Text)
	}
	if got.Messages[1].Text != "hi" {
		t.Fatalf("mutate touched a non-final message")
	}
	if err := s.MutateLastMessage("gone", "x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestTruncateTail(t *testing.T) {
	s := NewStore("")
	c := s.Create()
	if err := s.AppendMessages(c.ID,
		models.Message{Author: models.AuthorUser, Text: "hi"},
		models.Message{Author: models.AuthorCompanion, Text: "partial"},
	); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := s.TruncateTail(c.ID, 2); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	got, _ := s.Get(c.ID)
	if len(got.Messages) != 1 {
		t.Fatalf("expected only the greeting after rollback, got: %d", len(got.Messages))
	}
	// over-truncation clamps instead of panicking
	if err := s.TruncateTail(c.ID, 10); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	got, _ = s.Get(c.ID)
	if len(got.Messages) != 0 {
		t.Fatalf("expected empty message list, got: %d", len(got.Messages))
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := NewStore("")
	c := s.Create()
	snap, _ := s.Get(c.ID)
	snap.Messages[0].Text = "mutated"
	snap.Title = "mutated"
	fresh, _ := s.Get(c.ID)
	if fresh.Messages[0].Text == "mutated" || fresh.Title == "mutated" {
		t.Fatalf("snapshot shares memory with the store")
	}
}

func TestReplace(t *testing.T) {
	s := NewStore("")
	s.Create()
	persisted := []models.Conversation{
		{ID: "b", Title: "second", Messages: []models.Message{{Author: models.AuthorCompanion, Text: "hi"}}},
		{ID: "a", Title: "first", Messages: []models.Message{{Author: models.AuthorCompanion, Text: "hi"}}},
	}
	s.Replace(persisted)
	if s.Len() != 2 {
		t.Fatalf("expected 2 conversations, got: %d", s.Len())
	}
	if s.ActiveID() != "b" {
		t.Fatalf("expected first persisted entry active, got: %s", s.ActiveID())
	}
	// an empty list must leave the store untouched
	s.Replace(nil)
	if s.Len() != 2 {
		t.Fatalf("empty replace wiped the store")
	}
}
