package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/example/phonestore/internal/config"
)

const maxPicks = 3

// Candidate is one product offered to the ranking model.
type Candidate struct {
	ID          uuid.UUID         `json:"productId"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       int64             `json:"price"`
	Specs       map[string]string `json:"specifications,omitempty"`
	Category    string            `json:"category"`
}

// RankRequest is the structured input of a ranking call.
type RankRequest struct {
	Story      string
	Category   string
	Candidates []Candidate
}

// RankedPick is one product chosen by the model.
type RankedPick struct {
	ProductID uuid.UUID
	Rank      int
	Reason    string
}

// RankResult is the parsed model answer.
type RankResult struct {
	Picks      []RankedPick
	TokensUsed int
}

// Ranker picks up to three candidates that best match a customer's story.
type Ranker interface {
	Rank(ctx context.Context, req RankRequest) (RankResult, error)
}

// OpenAIRanker ranks candidates with a chat completion in JSON mode.
type OpenAIRanker struct {
	client *openai.Client
	model  string
}

// NewOpenAIRanker builds a ranker from config. BaseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAIRanker(cfg config.AIConfig) *OpenAIRanker {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIRanker{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

const rankerSystemPrompt = `You are a sales assistant for a phone store.
You receive a customer's description of their needs and a JSON list of candidate products.
Choose at most 3 products from the list that best fit the customer.
Answer with a JSON object of the form:
{"recommendations":[{"productId":"<id from the list>","rank":1,"reason":"<one or two sentences>"}]}
Ranks are 1, 2 and 3 with 1 the best fit. Use only productId values from the list.`

// Rank implements Ranker.
func (r *OpenAIRanker) Rank(ctx context.Context, req RankRequest) (RankResult, error) {
	payload, err := json.Marshal(req.Candidates)
	if err != nil {
		return RankResult{}, fmt.Errorf("encode candidates: %w", err)
	}
	user := fmt.Sprintf("Category: %s\nCustomer needs: %s\nCandidates:\n%s", req.Category, req.Story, payload)

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rankerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.2,
	})
	if err != nil {
		return RankResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return RankResult{}, errors.New("chat completion returned no choices")
	}

	picks, err := ParseRankingResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return RankResult{}, err
	}
	return RankResult{Picks: picks, TokensUsed: resp.Usage.TotalTokens}, nil
}

type rankingResponse struct {
	Recommendations *[]struct {
		ProductID string `json:"productId"`
		Rank      int    `json:"rank"`
		Reason    string `json:"reason"`
	} `json:"recommendations"`
}

// ParseRankingResponse decodes the model answer. The object must carry a
// recommendations array; entries whose productId is not a UUID are skipped.
// Markdown code fences around the JSON are tolerated.
func ParseRankingResponse(content string) ([]RankedPick, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var parsed rankingResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("decode ranking response: %w", err)
	}
	if parsed.Recommendations == nil {
		return nil, errors.New("ranking response has no recommendations array")
	}

	picks := make([]RankedPick, 0, len(*parsed.Recommendations))
	for _, rec := range *parsed.Recommendations {
		id, err := uuid.Parse(strings.TrimSpace(rec.ProductID))
		if err != nil {
			continue
		}
		picks = append(picks, RankedPick{ProductID: id, Rank: rec.Rank, Reason: strings.TrimSpace(rec.Reason)})
	}
	return picks, nil
}
