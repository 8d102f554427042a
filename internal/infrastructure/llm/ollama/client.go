// Package ollama talks to a local Ollama server for chunk embeddings and
// answer generation.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyeonsoft/document-qa/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// WithExecutor routes all Ollama calls through the retry/breaker executor.
func (c *Client) WithExecutor(executor *resilience.Executor) *Client {
	c.executor = executor
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed returned %d vectors for %d inputs", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate renders the final answer text. The context block carries the
// retrieved evidence; an empty block means an ungrounded answer was asked
// for on purpose.
func (g *Generator) Generate(ctx context.Context, prompt, contextBlock string) (string, error) {
	request := map[string]any{
		"model":  g.client.genModel,
		"prompt": renderPrompt(prompt, contextBlock),
		"stream": false,
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.call(ctx, "/api/generate", request, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, path string, payload, out any, operation string) error {
	do := func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, do, classifyOllamaError)
	} else {
		err = do(ctx)
	}
	return wrapTemporaryIfNeeded("ollama "+operation, err)
}
