package ops

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hpungsan/glean/internal/errors"
)

func TestAddIdea_SingleAndThread(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	single, err := AddIdea(ctx, database, AddIdeaInput{Content: "  just one  "})
	if err != nil {
		t.Fatalf("AddIdea failed: %v", err)
	}
	if single.Content != "just one" || single.IsThread || single.Thread != nil {
		t.Errorf("single idea = %+v", single)
	}

	thread, err := AddIdea(ctx, database, AddIdeaInput{Content: "summary", Thread: []string{"first", " ", "second"}})
	if err != nil {
		t.Fatalf("AddIdea failed: %v", err)
	}
	if !thread.IsThread || len(thread.Thread) != 2 || thread.Thread[1] != "second" {
		t.Errorf("thread idea = %+v", thread)
	}

	list, err := ListIdeas(ctx, database, ListIdeasInput{})
	if err != nil {
		t.Fatalf("ListIdeas failed: %v", err)
	}
	if list.Total != 2 || list.Ideas[0].ID != thread.ID || list.Ideas[1].ID != single.ID {
		t.Errorf("ideas should be newest first, got %+v", list.Ideas)
	}

	if _, err := AddIdea(ctx, database, AddIdeaInput{Content: " "}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest for empty content, got: %v", err)
	}
}

func TestIdea_ThreadOmittedInJSON(t *testing.T) {
	database := newTestDB(t)

	idea, err := AddIdea(context.Background(), database, AddIdeaInput{Content: "solo"})
	if err != nil {
		t.Fatalf("AddIdea failed: %v", err)
	}
	data, err := json.Marshal(idea)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["thread"]; ok {
		t.Errorf("thread should be omitted for single tweets: %s", data)
	}
}

func TestStarIdea_Toggles(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	idea, err := AddIdea(ctx, database, AddIdeaInput{Content: "star me"})
	if err != nil {
		t.Fatalf("AddIdea failed: %v", err)
	}

	starred, err := StarIdea(ctx, database, idea.ID)
	if err != nil {
		t.Fatalf("StarIdea failed: %v", err)
	}
	if !starred.IsStarred {
		t.Error("first toggle should star the idea")
	}

	only, err := ListIdeas(ctx, database, ListIdeasInput{StarredOnly: true})
	if err != nil {
		t.Fatalf("ListIdeas failed: %v", err)
	}
	if only.Total != 1 {
		t.Errorf("starred ideas = %d, want 1", only.Total)
	}

	unstarred, err := StarIdea(ctx, database, idea.ID)
	if err != nil {
		t.Fatalf("StarIdea failed: %v", err)
	}
	if unstarred.IsStarred {
		t.Error("second toggle should unstar the idea")
	}

	if _, err := StarIdea(ctx, database, "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestEditIdea(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	idea, err := AddIdea(ctx, database, AddIdeaInput{Content: "draft", Thread: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("AddIdea failed: %v", err)
	}
	if _, err := StarIdea(ctx, database, idea.ID); err != nil {
		t.Fatalf("StarIdea failed: %v", err)
	}

	content := "final"
	edited, err := EditIdea(ctx, database, EditIdeaInput{ID: idea.ID, Content: &content})
	if err != nil {
		t.Fatalf("EditIdea failed: %v", err)
	}
	if edited.Content != "final" || !edited.IsStarred || !edited.IsThread || len(edited.Thread) != 2 {
		t.Errorf("edited = %+v, want content changed and the rest kept", edited)
	}

	empty := []string{}
	flattened, err := EditIdea(ctx, database, EditIdeaInput{ID: idea.ID, Thread: &empty})
	if err != nil {
		t.Fatalf("EditIdea failed: %v", err)
	}
	if flattened.IsThread || flattened.Thread != nil {
		t.Errorf("empty thread should make a single tweet, got %+v", flattened)
	}

	blank := "  "
	if _, err := EditIdea(ctx, database, EditIdeaInput{ID: idea.ID, Content: &blank}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("blank content: expected ErrInvalidRequest, got: %v", err)
	}
	if _, err := EditIdea(ctx, database, EditIdeaInput{ID: idea.ID}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("no fields: expected ErrInvalidRequest, got: %v", err)
	}
	if _, err := EditIdea(ctx, database, EditIdeaInput{ID: "nope", Content: &content}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got: %v", err)
	}
}

func TestDeleteIdea(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	var ids []string
	for _, c := range []string{"one", "two", "three"} {
		idea, err := AddIdea(ctx, database, AddIdeaInput{Content: c})
		if err != nil {
			t.Fatalf("AddIdea failed: %v", err)
		}
		ids = append(ids, idea.ID)
	}

	if _, err := DeleteIdea(ctx, database, ids[0]); err != nil {
		t.Fatalf("DeleteIdea failed: %v", err)
	}

	list, err := ListIdeas(ctx, database, ListIdeasInput{})
	if err != nil {
		t.Fatalf("ListIdeas failed: %v", err)
	}
	if list.Total != 2 || list.Ideas[0].Content != "three" || list.Ideas[1].Content != "two" {
		t.Errorf("ideas after delete = %+v", list.Ideas)
	}

	if _, err := DeleteIdea(ctx, database, ids[0]); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}
