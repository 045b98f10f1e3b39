// Package gemini implements domain.CorrelationAssessor on top of the Google
// Gen AI SDK, asking a Gemini model for a structured pair assessment.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/alanyoungcy/marketgraph/internal/domain"
)

var _ domain.CorrelationAssessor = (*Assessor)(nil)

// generator is the slice of *genai.Models the assessor needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Assessor asks a Gemini model how two markets relate.
type Assessor struct {
	models generator
	model  string
	logger *slog.Logger
}

// New validates model and creates an Assessor backed by the Gemini API.
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Assessor, error) {
	resolved, err := ResolveModel(model)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return newAssessor(client.Models, resolved, logger), nil
}

func newAssessor(models generator, model string, logger *slog.Logger) *Assessor {
	return &Assessor{
		models: models,
		model:  model,
		logger: logger.With(slog.String("component", "gemini_assessor"), slog.String("model", model)),
	}
}

// Model returns the upstream model id in use.
func (a *Assessor) Model() string { return a.model }

var assessmentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"correlation_score": {
			Type:        genai.TypeNumber,
			Description: "Relationship strength from 0.0 to 1.0, inverse relationships included",
			Minimum:     genai.Ptr(0.0),
			Maximum:     genai.Ptr(1.0),
		},
		"explanation": {
			Type:        genai.TypeString,
			Description: "How the events relate, two or three sentences",
		},
		"investment_score": {
			Type:        genai.TypeNumber,
			Description: "Arbitrage opportunity from 0.0 to 1.0",
			Minimum:     genai.Ptr(0.0),
			Maximum:     genai.Ptr(1.0),
		},
		"investment_rationale": {
			Type:        genai.TypeString,
			Description: "Why the opportunity scores as it does",
		},
		"risk_level": {
			Type: genai.TypeString,
			Enum: []string{string(domain.RiskLow), string(domain.RiskMedium), string(domain.RiskHigh)},
		},
	},
	Required: []string{"correlation_score", "explanation", "investment_score", "investment_rationale", "risk_level"},
}

type assessmentJSON struct {
	CorrelationScore    *float64 `json:"correlation_score"`
	Explanation         string   `json:"explanation"`
	InvestmentScore     *float64 `json:"investment_score"`
	InvestmentRationale string   `json:"investment_rationale"`
	RiskLevel           string   `json:"risk_level"`
}

// Assess sends both markets' context to the model and parses its reply.
func (a *Assessor) Assess(ctx context.Context, m1, m2 domain.Market) (domain.CorrelationAssessment, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    assessmentSchema,
		Temperature:       genai.Ptr[float32](0.2),
	}

	resp, err := a.models.GenerateContent(ctx, a.model, genai.Text(buildPrompt(m1, m2)), cfg)
	if err != nil {
		return domain.CorrelationAssessment{}, fmt.Errorf("gemini: generate: %w", err)
	}

	out, err := parseAssessment(resp.Text())
	if err != nil {
		a.logger.Warn("unparseable assessment",
			slog.Int64("market_1", m1.ID),
			slog.Int64("market_2", m2.ID),
			slog.String("error", err.Error()),
		)
		return domain.CorrelationAssessment{}, err
	}
	return out, nil
}

func parseAssessment(text string) (domain.CorrelationAssessment, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var raw assessmentJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return domain.CorrelationAssessment{}, fmt.Errorf("gemini: decode assessment: %w", err)
	}
	if raw.CorrelationScore == nil || raw.InvestmentScore == nil {
		return domain.CorrelationAssessment{}, errors.New("gemini: assessment missing scores")
	}

	risk := domain.RiskLevel(strings.ToLower(strings.TrimSpace(raw.RiskLevel)))
	switch risk {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
	default:
		return domain.CorrelationAssessment{}, fmt.Errorf("gemini: invalid risk level %q", raw.RiskLevel)
	}

	return domain.CorrelationAssessment{
		CorrelationScore:    unit(*raw.CorrelationScore),
		Explanation:         strings.TrimSpace(raw.Explanation),
		InvestmentScore:     unit(*raw.InvestmentScore),
		InvestmentRationale: strings.TrimSpace(raw.InvestmentRationale),
		RiskLevel:           risk,
	}, nil
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
