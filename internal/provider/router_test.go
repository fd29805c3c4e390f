package provider

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeProvider struct {
	id     string
	text   string
	err    error
	chunks []string
	calls  int
}

func (f *fakeProvider) ID() string   { return f.id }
func (f *fakeProvider) Name() string { return f.id }

func (f *fakeProvider) Generate(_ context.Context, _ *GenerateRequest) (*GenerateResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &GenerateResponse{ID: f.id, Text: f.text}, nil
}

func (f *fakeProvider) GenerateStream(_ context.Context, _ *GenerateRequest) (<-chan *StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan *StreamChunk, len(f.chunks)+1)
	for _, c := range f.chunks {
		ch <- &StreamChunk{Text: c}
	}
	ch <- &StreamChunk{Done: true, FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) HealthCheck(_ context.Context) error { return f.err }

func TestGenerateUsesBoundProvider(t *testing.T) {
	r := NewRouter(zap.NewNop())
	def := &fakeProvider{id: "default", text: "from default"}
	bound := &fakeProvider{id: "bound", text: "from bound"}
	r.Register(def)
	r.Register(bound)
	r.Bind("task_breakdown", "bound")

	resp, err := r.Generate(context.Background(), "task_breakdown", &GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "from bound" {
		t.Errorf("text = %q, want bound provider output", resp.Text)
	}
	if def.calls != 0 {
		t.Errorf("default provider called %d times", def.calls)
	}
}

func TestGenerateFallsBackInOrder(t *testing.T) {
	r := NewRouter(zap.NewNop())
	primary := &fakeProvider{id: "primary", err: errors.New("backend down")}
	second := &fakeProvider{id: "second", err: errors.New("also down")}
	third := &fakeProvider{id: "third", text: "recovered"}
	r.Register(primary)
	r.Register(second)
	r.Register(third)
	r.SetFallbacks("communication_translation", []string{"second", "third"})

	resp, err := r.Generate(context.Background(), "communication_translation", &GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("text = %q, want third provider output", resp.Text)
	}
	if second.calls != 1 {
		t.Errorf("second fallback called %d times, want 1", second.calls)
	}
}

func TestGenerateAllProvidersFailed(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&fakeProvider{id: "only", err: errors.New("down")})

	if _, err := r.Generate(context.Background(), "task_breakdown", &GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestGenerateWithoutProviders(t *testing.T) {
	r := NewRouter(zap.NewNop())
	if _, err := r.Generate(context.Background(), "task_breakdown", &GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error with no registered providers")
	}
}

func TestGenerateStreamDeliversChunksInOrder(t *testing.T) {
	r := NewRouter(zap.NewNop())
	r.Register(&fakeProvider{id: "streamer", chunks: []string{"break ", "it ", "down"}})

	ch, err := r.GenerateStream(context.Background(), "task_breakdown", &GenerateRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var text string
	var done bool
	for chunk := range ch {
		if chunk.Done {
			done = true
			if chunk.FinishReason != "stop" {
				t.Errorf("finish reason = %q", chunk.FinishReason)
			}
			continue
		}
		text += chunk.Text
	}
	if text != "break it down" {
		t.Errorf("assembled %q", text)
	}
	if !done {
		t.Error("stream ended without a done chunk")
	}
}

func TestGenerateStreamHasNoFallback(t *testing.T) {
	r := NewRouter(zap.NewNop())
	primary := &fakeProvider{id: "primary", err: errors.New("down")}
	backup := &fakeProvider{id: "backup", chunks: []string{"x"}}
	r.Register(primary)
	r.Register(backup)
	r.SetFallbacks("task_breakdown", []string{"backup"})

	if _, err := r.GenerateStream(context.Background(), "task_breakdown", &GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected primary failure to surface, not fall back")
	}
}
