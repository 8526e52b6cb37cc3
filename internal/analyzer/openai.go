// Package analyzer provides qualitative opportunity analysis backed by an
// LLM. The analyzer is strictly best-effort: every failure path returns an
// error the caller absorbs, leaving the rule-based score in place.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openprocure/harrier/internal/domain"
)

// OpenAIAnalyzer implements domain.Analyzer using the OpenAI chat API.
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
}

// analysisResponse is the JSON shape the model is instructed to return.
type analysisResponse struct {
	Adjustment   float64  `json:"adjustment"`
	Rationale    string   `json:"rationale"`
	Requirements []string `json:"requirements"`
	Risks        []string `json:"risks"`
	Questions    []string `json:"questions"`
}

// NewOpenAIAnalyzer creates an analyzer against the OpenAI API.
func NewOpenAIAnalyzer(apiKey, model string) *OpenAIAnalyzer {
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIAnalyzer{client: client, model: model}
}

// Analyze asks the model for a bounded fit adjustment and structured notes
// for one (opportunity, tenant profile) pair.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, opp *domain.Opportunity, profile *domain.TenantProfile) (*domain.AnalysisResult, error) {
	prompt := buildAnalysisPrompt(opp, profile)

	response, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a government contracting capture analyst. Assess how well an opportunity fits a contractor's profile and respond only with the requested JSON."),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(800),
	})

	if err != nil {
		return nil, &domain.AnalysisError{Err: err}
	}

	if len(response.Choices) == 0 {
		return nil, &domain.AnalysisError{Err: fmt.Errorf("no response from model")}
	}

	content := response.Choices[0].Message.Content
	var parsed analysisResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, &domain.AnalysisError{Err: fmt.Errorf("failed to parse model response: %w", err)}
	}

	return &domain.AnalysisResult{
		Adjustment:   parsed.Adjustment,
		Rationale:    parsed.Rationale,
		Requirements: parsed.Requirements,
		Risks:        parsed.Risks,
		Questions:    parsed.Questions,
		CostMicroUSD: estimateCost(response.Usage.PromptTokens, response.Usage.CompletionTokens),
	}, nil
}

func buildAnalysisPrompt(opp *domain.Opportunity, profile *domain.TenantProfile) string {
	var sb strings.Builder
	sb.WriteString("Assess the fit between this opportunity and this contractor.\n\n")
	sb.WriteString("Opportunity:\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", opp.Title))
	sb.WriteString(fmt.Sprintf("Agency: %s\n", opp.Agency))
	sb.WriteString(fmt.Sprintf("NAICS: %s  PSC: %s  Set-aside: %s  Type: %s\n", opp.NAICSCode, opp.PSCCode, opp.SetAside, opp.OppType))
	sb.WriteString(fmt.Sprintf("Closes: %s\n", opp.CloseAt.Format("2006-01-02")))
	if opp.ValueMax > 0 {
		sb.WriteString(fmt.Sprintf("Estimated value: $%.0f - $%.0f\n", opp.ValueMin, opp.ValueMax))
	}
	sb.WriteString(fmt.Sprintf("Description: %s\n\n", truncate(opp.Description, 3000)))

	sb.WriteString("Contractor profile:\n")
	sb.WriteString(fmt.Sprintf("Primary NAICS: %s\n", strings.Join(profile.PrimaryNAICS, ", ")))
	sb.WriteString(fmt.Sprintf("Secondary NAICS: %s\n", strings.Join(profile.SecondaryNAICS, ", ")))
	sb.WriteString(fmt.Sprintf("Set-asides: %s\n", strings.Join(profile.SetAsides, ", ")))
	for group, words := range profile.Keywords {
		sb.WriteString(fmt.Sprintf("Capability (%s): %s\n", group, strings.Join(words, ", ")))
	}

	sb.WriteString("\nRespond with JSON only:\n")
	sb.WriteString(`{"adjustment": -15.0 to 15.0, "rationale": "2-3 sentences", "requirements": ["key requirement"], "risks": ["key risk"], "questions": ["clarification to ask"]}`)
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// estimateCost converts token usage to micro-USD at gpt-4o-mini list prices.
func estimateCost(promptTokens, completionTokens int64) int64 {
	return int64(float64(promptTokens)*0.15 + float64(completionTokens)*0.60)
}
