package llm

import "testing"

func TestNewProviderOllama(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "Ollama", BaseURL: "http://localhost:11434", ChatModel: "qwen2.5"}, nil)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.Chat == nil || p.Structured == nil || p.Embedder == nil {
		t.Fatalf("provider has unset capabilities: %#v", p)
	}
}

func TestNewProviderRejectsUnknownAndIncomplete(t *testing.T) {
	if _, err := NewProvider(ProviderConfig{Provider: "openai", BaseURL: "http://x"}, nil); err == nil {
		t.Fatalf("expected unknown provider to be rejected")
	}
	if _, err := NewProvider(ProviderConfig{Provider: "ollama"}, nil); err == nil {
		t.Fatalf("expected missing base url to be rejected")
	}
}

func TestProvidersAreIndependent(t *testing.T) {
	a, err := NewProvider(ProviderConfig{BaseURL: "http://a", ChatModel: "m1"}, nil)
	if err != nil {
		t.Fatalf("NewProvider(a) error = %v", err)
	}
	b, err := NewProvider(ProviderConfig{BaseURL: "http://b", ChatModel: "m2"}, nil)
	if err != nil {
		t.Fatalf("NewProvider(b) error = %v", err)
	}
	if a.Chat == b.Chat {
		t.Fatalf("providers share a chat client")
	}
}
