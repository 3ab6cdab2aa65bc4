package drafts

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestJournal(t *testing.T) (*RedisJournal, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	journal, err := NewRedisJournal("redis://"+s.Addr(), "job-1")
	if err != nil {
		t.Fatalf("failed to create journal: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })
	return journal, s
}

func TestNewRedisJournalRejectsBadURL(t *testing.T) {
	if _, err := NewRedisJournal("not a url", "job-1"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLoadDraft(t *testing.T) {
	journal, s := setupTestJournal(t)
	ctx := context.Background()

	if err := journal.SaveDraft(ctx, "p-1", "<p>typing</p>"); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}
	if !s.Exists("draft:job-1:p-1") {
		t.Fatalf("expected scoped key, have %v", s.Keys())
	}

	draft, ok, err := journal.LoadDraft(ctx, "p-1")
	if err != nil || !ok {
		t.Fatalf("LoadDraft failed: ok=%v err=%v", ok, err)
	}
	if draft.Content != "<p>typing</p>" || draft.DocID != "p-1" {
		t.Errorf("unexpected draft %+v", draft)
	}
}

func TestLoadMissingDraft(t *testing.T) {
	journal, _ := setupTestJournal(t)
	_, ok, err := journal.LoadDraft(context.Background(), "nothing")
	if err != nil || ok {
		t.Fatalf("expected no draft, got ok=%v err=%v", ok, err)
	}
}

func TestDraftExpires(t *testing.T) {
	journal, s := setupTestJournal(t)
	ctx := context.Background()
	if err := journal.SaveDraft(ctx, "p-1", "<p>old</p>"); err != nil {
		t.Fatalf("SaveDraft failed: %v", err)
	}

	s.FastForward(DefaultTTL + time.Second)

	if _, ok, _ := journal.LoadDraft(ctx, "p-1"); ok {
		t.Error("expected draft to expire")
	}
}

func TestClearDraft(t *testing.T) {
	journal, _ := setupTestJournal(t)
	ctx := context.Background()
	_ = journal.SaveDraft(ctx, "p-1", "<p>x</p>")
	if err := journal.ClearDraft(ctx, "p-1"); err != nil {
		t.Fatalf("ClearDraft failed: %v", err)
	}
	if _, ok, _ := journal.LoadDraft(ctx, "p-1"); ok {
		t.Error("expected draft to be cleared")
	}
	if err := journal.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
