package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/script-kb-assistant/internal/core/ports"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/script-kb-assistant/internal/infrastructure/resilience"
)

const ProviderOllama = "ollama"

// ProviderConfig selects and configures the model provider. It is passed explicitly so
// several configurations can coexist in one process.
type ProviderConfig struct {
	Provider        string
	BaseURL         string
	ChatModel       string
	ClassifierModel string
	EmbedModel      string
	Temperature     float64
	Timeout         time.Duration
}

// Provider groups the model-facing ports built from one ProviderConfig.
type Provider struct {
	Chat       ports.ChatModel
	Structured ports.StructuredGenerator
	Embedder   ports.Embedder
}

func NewProvider(cfg ProviderConfig, executor *resilience.Executor) (*Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOllama:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("ollama provider requires a base url")
		}
		client := ollama.New(ollama.Config{
			BaseURL:         cfg.BaseURL,
			ChatModel:       cfg.ChatModel,
			ClassifierModel: cfg.ClassifierModel,
			EmbedModel:      cfg.EmbedModel,
			Temperature:     cfg.Temperature,
			Timeout:         cfg.Timeout,
		}, executor)
		return &Provider{
			Chat:       ollama.NewChatModel(client),
			Structured: ollama.NewStructuredGenerator(client),
			Embedder:   ollama.NewEmbedder(client),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
