package analyzer

import (
	"strings"
	"testing"
	"time"

	"github.com/openprocure/harrier/internal/domain"
)

func TestNewOpenAIAnalyzerDefaultsModel(t *testing.T) {
	a := NewOpenAIAnalyzer("test-key", "")
	if a.model != "gpt-4o-mini" {
		t.Errorf("expected default model, got %q", a.model)
	}

	a = NewOpenAIAnalyzer("test-key", "gpt-4o")
	if a.model != "gpt-4o" {
		t.Errorf("expected configured model kept, got %q", a.model)
	}
}

func TestBuildAnalysisPrompt(t *testing.T) {
	opp := &domain.Opportunity{
		Title:       "Cloud Migration Services",
		Agency:      "Department of Energy",
		NAICSCode:   "541512",
		SetAside:    "SBA",
		OppType:     "Solicitation",
		CloseAt:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		ValueMin:    100000,
		ValueMax:    500000,
		Description: strings.Repeat("x", 4000),
	}
	profile := &domain.TenantProfile{
		TenantID:     "tenant-1",
		PrimaryNAICS: []string{"541512"},
		SetAsides:    []string{"SBA"},
		Keywords:     map[string][]string{"cloud": {"cloud migration"}},
	}

	prompt := buildAnalysisPrompt(opp, profile)
	for _, want := range []string{"Cloud Migration Services", "Department of Energy", "541512", "2026-10-01", `"adjustment"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	// Long descriptions are truncated before they reach the model.
	if strings.Count(prompt, "x") > 3000 {
		t.Error("expected description truncated to 3000 chars")
	}
}

func TestEstimateCost(t *testing.T) {
	if got := estimateCost(1000, 100); got != 210 {
		t.Errorf("expected 210 micro-USD, got %d", got)
	}
	if got := estimateCost(0, 0); got != 0 {
		t.Errorf("expected zero cost for zero usage, got %d", got)
	}
}
