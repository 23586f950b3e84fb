package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/opendlt/actionlog/bridge/pricefeed"
	"github.com/opendlt/actionlog/internal/logz"
)

// DefaultGeminiModel is used when no model name is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the part of genai.Models the provider uses
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider asks a Gemini model for a trade suggestion
type GeminiProvider struct {
	models contentGenerator
	model  string
	prices pricefeed.Source
	logger *logz.Logger
}

var _ PredictionProvider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a provider backed by the Gemini API. An empty
// apiKey lets the client read GOOGLE_API_KEY / GEMINI_API_KEY.
func NewGeminiProvider(ctx context.Context, apiKey, model string, prices pricefeed.Source) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiProvider(client.Models, model, prices), nil
}

func newGeminiProvider(models contentGenerator, model string, prices pricefeed.Source) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiProvider{
		models: models,
		model:  model,
		prices: prices,
		logger: logz.New(logz.INFO, "strategy-gemini"),
	}
}

type geminiAnswer struct {
	PredictedPrice decimal.Decimal `json:"predicted_price"`
	Leverage       int             `json:"leverage"`
	OrderType      string          `json:"order_type"`
	TradeSize      decimal.Decimal `json:"trade_size"`
	RiskLevel      string          `json:"risk_level"`
}

const geminiInstruction = `You are a cautious crypto trading assistant.
Answer with a single JSON object and nothing else, with the fields:
predicted_price (number, USD, next hour), leverage (integer 1-10),
order_type ("market"), trade_size (number, USD, below 500),
risk_level ("Low" or "High").`

// Suggest implements PredictionProvider
func (p *GeminiProvider) Suggest(ctx context.Context, pair string) (*Suggestion, error) {
	if pair == "" {
		return nil, errors.New("pair cannot be empty")
	}

	s := &Suggestion{Pair: pair}
	fillRealTimePrice(ctx, p.prices, p.logger, s)

	prompt := fmt.Sprintf("Trading pair: %s.", pair)
	if s.PriceAvailable {
		prompt += fmt.Sprintf(" Current price: %s USD.", s.RealTimePrice)
	}

	resp, err := p.models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: geminiInstruction}}},
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no suggestion from model %s", p.model)
	}

	text := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```")

	var answer geminiAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &answer); err != nil {
		return nil, fmt.Errorf("unparseable suggestion from model %s: %w", p.model, err)
	}

	s.PredictedPrice = answer.PredictedPrice.Round(2)
	s.Leverage = answer.Leverage
	s.OrderType = strings.ToLower(answer.OrderType)
	if s.OrderType == "" {
		s.OrderType = OrderMarket
	}
	s.TradeSize = answer.TradeSize.Round(2)
	s.RiskLevel = answer.RiskLevel

	p.logger.Debug("Model %s suggested %s at %s with %dx", p.model, pair, s.PredictedPrice, s.Leverage)
	return s, nil
}
