package ai_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"video-pipeline/internal/domain/model"
	"video-pipeline/internal/domain/ports/adapter"
	ai "video-pipeline/internal/infra/adapters/ai"
)

type stubAI struct {
	name      string
	chatN     int
	lastModel string
	block     chan struct{}
}

func (s *stubAI) ListModels(ctx context.Context) ([]string, error) {
	return []string{s.name + "-model"}, nil
}

func (s *stubAI) Chat(ctx context.Context, req adapter.ChatRequest) (adapter.ChatResponse, error) {
	s.chatN++
	s.lastModel = req.Model
	if s.block != nil {
		<-s.block
	}
	return adapter.ChatResponse{Text: "ok"}, nil
}

func TestRouting_ExplicitMap_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}

	m := ai.NewMultiAIAdapter(
		"openai",
		map[string]adapter.AIServiceAdapter{"openai": open, "gemini": gem},
		map[string]string{"custom-x": "gemini"},
	)

	// explicit map wins
	_, _ = m.Chat(ctx, adapter.ChatRequest{Model: "custom-x"})
	if gem.chatN != 1 || open.chatN != 0 {
		t.Fatalf("explicit map should route to gemini, got open:%d gem:%d", open.chatN, gem.chatN)
	}
	open.chatN, gem.chatN = 0, 0

	// gpt-* -> openai
	_, _ = m.Chat(ctx, adapter.ChatRequest{Model: "gpt-4o-mini"})
	if open.chatN != 1 || gem.chatN != 0 {
		t.Fatalf("heuristic gpt-* should go openai")
	}
	open.chatN, gem.chatN = 0, 0

	// gemini-* -> gemini
	_, _ = m.Chat(ctx, adapter.ChatRequest{Model: "gemini-2.0-flash-lite"})
	if gem.chatN != 1 || open.chatN != 0 {
		t.Fatalf("heuristic gemini-* should go gemini")
	}
	open.chatN, gem.chatN = 0, 0

	// unknown -> default provider (openai)
	_, _ = m.Chat(ctx, adapter.ChatRequest{Model: "unknown"})
	if open.chatN != 1 || gem.chatN != 0 {
		t.Fatalf("unknown model should go to default provider (openai)")
	}
}

func TestListModels_Union(t *testing.T) {
	t.Parallel()
	m := ai.NewMultiAIAdapter("gemini",
		map[string]adapter.AIServiceAdapter{"openai": &stubAI{name: "openai"}, "gemini": &stubAI{name: "gemini"}},
		map[string]string{"custom-x": "gemini"},
	)
	got, _ := m.ListModels(context.Background())
	want := map[string]bool{"custom-x": true, "openai-model": true, "gemini-model": true}
	if len(got) != len(want) {
		t.Fatalf("ListModels() = %v", got)
	}
	for _, name := range got {
		if !want[name] {
			t.Fatalf("unexpected model %q", name)
		}
	}
}

func TestLimitedAI_RespectsContext(t *testing.T) {
	t.Parallel()
	inner := &stubAI{name: "slow", block: make(chan struct{})}
	l := ai.NewLimitedAI(inner, 1)

	done := make(chan struct{})
	go func() {
		_, _ = l.Chat(context.Background(), adapter.ChatRequest{})
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Chat(ctx, adapter.ChatRequest{}); err == nil {
		t.Fatal("second call should wait for the slot and give up with the context")
	}
	close(inner.block)
	<-done
}

func TestNoopAI_StoryboardTasks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	n := ai.NewNoopAIAdapter(nil)

	in, _ := json.Marshal(model.NarrativeInput{Title: "Dawn", Story: "a homecoming", TargetSeconds: 30})
	resp, err := n.Chat(ctx, adapter.ChatRequest{Task: adapter.TaskScenes, Messages: []adapter.Message{{Role: "user", Content: string(in)}}})
	if err != nil {
		t.Fatalf("scenes: %v", err)
	}
	var scenes struct {
		Characters []model.Character `json:"characters"`
		Scenes     []model.Scene     `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &scenes); err != nil || len(scenes.Scenes) != 3 || len(scenes.Characters) != 1 {
		t.Fatalf("scenes reply %s (%v)", resp.Text, err)
	}

	payload, _ := json.Marshal(map[string]any{"scenes": scenes.Scenes})
	resp, err = n.Chat(ctx, adapter.ChatRequest{Task: adapter.TaskShots, Messages: []adapter.Message{{Role: "user", Content: string(payload)}}})
	if err != nil {
		t.Fatalf("shots: %v", err)
	}
	var shots struct {
		Shots []model.Shot `json:"shots"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &shots); err != nil || len(shots.Shots) != 6 {
		t.Fatalf("shots reply %s (%v)", resp.Text, err)
	}
	if shots.Shots[0].SceneID != "SC01" || shots.Shots[1].Camera == nil {
		t.Fatalf("unexpected shots %+v", shots.Shots[:2])
	}
}
