package scoring

import "github.com/openprocure/harrier/internal/domain"

// DefaultScoringRules returns the seed rule set loaded on first start. The
// expressions and point caps are admin-tunable afterwards; the six factors
// together cap at 100 points.
func DefaultScoringRules() []*domain.ScoringRule {
	return []*domain.ScoringRule{
		{
			Factor:      domain.FactorNAICS,
			Description: "Full credit for a primary NAICS match, half for secondary",
			Expression:  `naics in primary_naics ? 1.0 : (naics in secondary_naics ? 0.5 : 0.0)`,
			MaxPoints:   30,
			Enabled:     true,
		},
		{
			Factor:      domain.FactorKeyword,
			Description: "Fraction of profile keywords found in the title and description",
			Expression:  `keywords.size() == 0 ? 0.0 : double(keywords.filter(k, text.contains(k)).size()) / double(keywords.size())`,
			MaxPoints:   25,
			Enabled:     true,
		},
		{
			Factor:      domain.FactorSetAside,
			Description: "Full credit when the tenant qualifies for the set-aside program",
			Expression:  `set_aside != "" && set_aside in set_asides`,
			MaxPoints:   15,
			Enabled:     true,
		},
		{
			Factor:      domain.FactorAgency,
			Description: "Credit by agency priority tier (1 = highest)",
			Expression:  `agency in agency_priorities ? (agency_priorities[agency] == 1 ? 1.0 : (agency_priorities[agency] == 2 ? 0.7 : 0.4)) : 0.0`,
			MaxPoints:   10,
			Enabled:     true,
		},
		{
			Factor:      domain.FactorOppType,
			Description: "Actionable solicitation types over early notices",
			Expression:  `opp_type == "Solicitation" || opp_type == "Combined Synopsis/Solicitation" ? 1.0 : (opp_type == "Presolicitation" ? 0.5 : 0.25)`,
			MaxPoints:   10,
			Enabled:     true,
		},
		{
			Factor:      domain.FactorTimeline,
			Description: "More runway before the close date scores higher",
			Expression:  `days_until_close >= 30 ? 1.0 : (days_until_close >= 14 ? 0.7 : (days_until_close >= 7 ? 0.4 : 0.1))`,
			MaxPoints:   10,
			Enabled:     true,
		},
	}
}
