package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"hrai/internal/domain"
)

const defaultAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements domain.Generator against the Gemini API. Each call
// acquires a key from the ring, so load spreads across the pool without the
// dispatcher knowing about credentials. Clients are cached per key.
type Gemini struct {
	ring         *KeyRing
	textModel    string
	visionModel  string
	systemPrompt string
	apiBase      string
	timeout      time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

type GeminiConfig struct {
	Ring         *KeyRing
	TextModel    string
	VisionModel  string
	SystemPrompt string
	APIBase      string // health-probe endpoint, defaults to the public API
	Timeout      time.Duration
	Logger       *slog.Logger
}

func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.Ring == nil {
		return nil, fmt.Errorf("gemini: key ring is required")
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-1.5-flash"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.TextModel
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gemini{
		ring:         cfg.Ring,
		textModel:    cfg.TextModel,
		visionModel:  cfg.VisionModel,
		systemPrompt: cfg.SystemPrompt,
		apiBase:      cfg.APIBase,
		timeout:      cfg.Timeout,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       cfg.Logger,
		clients:      make(map[string]*genai.Client),
	}, nil
}

func (g *Gemini) Name() string { return "gemini" }

// Healthy probes the models endpoint with the key that would serve the next
// request. The call costs no generation quota and distinguishes an invalid
// key from an unreachable API.
func (g *Gemini) Healthy(ctx context.Context) error {
	key, index := g.ring.Peek()
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("gemini: key %d is empty", index)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", key)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini not reachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("gemini: invalid API key (key %d)", index)
	default:
		return fmt.Errorf("gemini returned %d", resp.StatusCode)
	}
}

// GenerateText sends the prompt plus the ordered history window and returns
// the model's reply text.
func (g *Gemini) GenerateText(ctx context.Context, req domain.TextRequest) (string, error) {
	key, index := g.ring.Acquire()
	client, err := g.clientFor(ctx, key)
	if err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, genai.NewContentFromText(turn.Text, genaiRole(turn.Role)))
	}
	contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, g.textModel, contents, g.generateConfig())
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}

	g.logger.Debug("gemini text call",
		"model", g.textModel,
		"key_index", index,
		"history_turns", len(req.History),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// GenerateVision sends a prompt plus inline image bytes to the vision model.
func (g *Gemini) GenerateVision(ctx context.Context, req domain.VisionRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("gemini vision: image bytes are required")
	}

	key, index := g.ring.Acquire()
	client, err := g.clientFor(ctx, key)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromBytes(req.Image, req.MimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, g.visionModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini vision: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini vision: empty response")
	}

	g.logger.Debug("gemini vision call",
		"model", g.visionModel,
		"key_index", index,
		"image_bytes", len(req.Image),
		"mime", req.MimeType,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func (g *Gemini) generateConfig() *genai.GenerateContentConfig {
	if g.systemPrompt == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
	}
}

func (g *Gemini) clientFor(ctx context.Context, key string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.clients[key]; ok {
		return client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g.clients[key] = client
	return client, nil
}

func genaiRole(role domain.Role) genai.Role {
	if role == domain.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}
