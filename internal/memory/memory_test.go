package memory

import (
	"context"
	"testing"

	"toh-translator/internal/document"
	"toh-translator/internal/textutil"
)

// fakeBackend records upserts and serves gets from a map.
type fakeBackend struct {
	rows    map[string]Record
	upserts int
}

func (f *fakeBackend) Get(_ context.Context, hash string) (Record, error) {
	r, ok := f.rows[hash]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeBackend) Upsert(_ context.Context, hashes []string, records []Record) error {
	f.upserts++
	for i, h := range hashes {
		f.rows[h] = records[i]
	}
	return nil
}

func (f *fakeBackend) List(context.Context) (map[string]Record, error) {
	return f.rows, nil
}

func TestPushPull(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{rows: make(map[string]Record)}
	m := New(be)

	src := document.New(document.RootMenu)
	src.AddGroup("Items").Entries = []*document.Entry{
		{JapaneseText: "剣", EnglishText: "Sword", Status: document.StatusDone},
		{JapaneseText: "盾", EnglishText: "Shield", Status: document.StatusToDo},
	}
	n, err := m.Push(ctx, src, document.NewStatuses())
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if n != 1 || be.upserts != 1 {
		t.Fatalf("Push = %d with %d upserts, want 1 and 1", n, be.upserts)
	}

	// a fresh process sees the backend only
	other := New(be)
	dst := document.New(document.RootMenu)
	dst.AddGroup("Items").Entries = []*document.Entry{
		{JapaneseText: "剣"},
		{JapaneseText: "盾"},
		{JapaneseText: "剣", EnglishText: "Blade", Status: document.StatusEditing},
	}
	if got := other.Pull(ctx, dst); got != 1 {
		t.Fatalf("Pull = %d, want 1", got)
	}
	es := dst.Entries()
	if es[0].EnglishText != "Sword" || es[0].Status != document.StatusDone {
		t.Fatalf("entry 0 = %+v", es[0])
	}
	if es[1].EnglishText != "" {
		t.Fatalf("entry 1 = %+v, want untouched", es[1])
	}
	if es[2].EnglishText != "Blade" {
		t.Fatalf("entry 2 = %+v, want existing translation kept", es[2])
	}
}

func TestPreload(t *testing.T) {
	be := &fakeBackend{rows: map[string]Record{
		textutil.Hash("薬"): {Source: "薬", Translated: "Potion", Status: document.StatusDone},
	}}
	m := New(be)
	if err := m.Preload(context.Background()); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	be.rows = map[string]Record{}
	if r, ok := m.Get(context.Background(), "薬"); !ok || r.Translated != "Potion" {
		t.Fatalf("Get = %+v, %v; want Potion from memory", r, ok)
	}
}

func TestWithoutBackend(t *testing.T) {
	m := New(nil)
	if err := m.SetBatch(context.Background(), []Record{{Source: "a", Translated: "b"}}); err != nil {
		t.Fatalf("SetBatch: %v", err)
	}
	if r, ok := m.Get(context.Background(), "a"); !ok || r.Translated != "b" {
		t.Fatalf("Get = %+v, %v", r, ok)
	}
	if _, ok := m.Get(context.Background(), "missing"); ok {
		t.Fatal("Get(missing) found something")
	}
}
