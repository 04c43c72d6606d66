package batch

// Metrics aggregates the outcome of a batch run, including the cost saved
// against processing every record on the most expensive tier.
type Metrics struct {
	TotalRecords   int
	FailedRecords  int
	ByComplexity   map[Complexity]int
	ByTier         map[string]int
	TotalCost      float64
	TotalTokens    int
	BaselineCost   float64 // Every record priced at the complex-tier rate
	SavingsPercent float64
}

// Cost per 1K tokens for each tier; the complex tier doubles as the
// everything-on-the-big-model baseline.
var tierCostPer1K = map[string]float64{
	string(SimpleComplexity):  0.000075,
	string(MediumComplexity):  0.00015,
	string(ComplexComplexity): 0.015,
}

// TierCost prices a token count for a tier. Unknown tiers price at the
// complex rate.
func TierCost(tier string, tokens int) float64 {
	rate, ok := tierCostPer1K[tier]
	if !ok {
		rate = tierCostPer1K[string(ComplexComplexity)]
	}
	return float64(tokens) * rate / 1000
}

// Collect computes metrics over processed records.
func Collect(records []*Record) Metrics {
	m := Metrics{
		TotalRecords: len(records),
		ByComplexity: make(map[Complexity]int),
		ByTier:       make(map[string]int),
	}
	for _, record := range records {
		m.ByComplexity[record.Complexity]++
		if record.Err != nil {
			m.FailedRecords++
			continue
		}
		m.ByTier[record.Tier]++
		m.TotalCost += record.Cost
		m.TotalTokens += record.TokensUsed
		m.BaselineCost += TierCost(string(ComplexComplexity), record.TokensUsed)
	}
	if m.BaselineCost > 0 {
		m.SavingsPercent = (m.BaselineCost - m.TotalCost) / m.BaselineCost * 100
	}
	return m
}
