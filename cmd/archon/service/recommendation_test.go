package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/archonhq/archon/common/cache"
	"github.com/archonhq/archon/common/llm"
)

type fakeLLM struct {
	response json.RawMessage
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return string(f.response), nil
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, prompt string) (json.RawMessage, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fixture) recommendationService(client llm.Client, recCache cache.Cache) *RecommendationService {
	return NewRecommendationService(&RecommendationServiceOpts{
		Workflows: f.workflows,
		LLM:       client,
		Cache:     recCache,
		Logger:    f.log,
	})
}

func TestRecommend(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	client := &fakeLLM{response: json.RawMessage(`{
		"recommendations": [{
			"type": "refactoring",
			"title": "Name the trigger",
			"description": "Give n1 a descriptive label.",
			"severity": "info",
			"node_ids": ["n1"]
		}]
	}`)}
	svc := f.recommendationService(client, nil)

	recs, err := svc.Recommend(context.Background(), w.ID, "", "dev")
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation, got %d", len(recs))
	}
	if recs[0].Title != "Name the trigger" || recs[0].Severity != "info" {
		t.Errorf("Unexpected recommendation: %+v", recs[0])
	}

	if len(client.prompts) != 1 {
		t.Fatalf("Expected 1 LLM call, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]
	if !strings.Contains(prompt, "Review focus: refactoring") {
		t.Error("Expected the default focus in the prompt")
	}
	if !strings.Contains(prompt, "- n2 (agent): Research") {
		t.Errorf("Expected the node summary in the prompt, got:\n%s", prompt)
	}
}

func TestRecommendUnknownFocus(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	svc := f.recommendationService(&fakeLLM{}, nil)

	_, err := svc.Recommend(context.Background(), w.ID, "vibes", "dev")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for unknown focus, got %v", err)
	}
}

func TestRecommendWorkflowNotFound(t *testing.T) {
	f := newFixture()
	svc := f.recommendationService(&fakeLLM{}, nil)

	_, err := svc.Recommend(context.Background(), uuid.New(), "cost", "dev")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
}

func TestRecommendLLMFailure(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	svc := f.recommendationService(&fakeLLM{err: errors.New("upstream 500")}, nil)

	_, err := svc.Recommend(context.Background(), w.ID, "anomaly", "dev")
	if err == nil {
		t.Fatal("Expected an error when the model call fails")
	}
}

func TestRecommendServesRepeatCallsFromCache(t *testing.T) {
	f := newFixture()
	w := f.seedWorkflow(t, mergeBaseSpec)
	client := &fakeLLM{response: json.RawMessage(`{
		"recommendations": [{
			"type": "cost",
			"title": "Collapse the branches",
			"description": "n2 and n3 duplicate work.",
			"severity": "warning"
		}]
	}`)}
	recCache := cache.NewMemoryCache(f.log)
	defer recCache.Close()
	svc := f.recommendationService(client, recCache)

	first, err := svc.Recommend(context.Background(), w.ID, "cost", "dev")
	if err != nil {
		t.Fatalf("Recommend returned error: %v", err)
	}
	second, err := svc.Recommend(context.Background(), w.ID, "cost", "dev")
	if err != nil {
		t.Fatalf("Repeat Recommend returned error: %v", err)
	}

	if len(client.prompts) != 1 {
		t.Fatalf("Expected the repeat call to hit the cache, got %d LLM calls", len(client.prompts))
	}
	if len(second) != 1 || second[0].Title != first[0].Title {
		t.Errorf("Cached result differs: %+v vs %+v", second, first)
	}

	// A different focus is a different key
	if _, err := svc.Recommend(context.Background(), w.ID, "anomaly", "dev"); err != nil {
		t.Fatalf("Recommend with new focus returned error: %v", err)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("Expected a fresh LLM call for a new focus, got %d", len(client.prompts))
	}
}
