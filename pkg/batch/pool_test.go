package batch_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adyngom/nano-agent/pkg/batch"
)

// tierProcessor charges each record at its tier's rate for a fixed token
// count.
func tierProcessor(tokens int) batch.Processor {
	return func(_ context.Context, record *batch.Record) error {
		record.TokensUsed = tokens
		record.Cost = batch.TierCost(record.Tier, tokens)
		return nil
	}
}

func makeRecords(counts map[batch.Complexity]int) []*batch.Record {
	var records []*batch.Record
	id := 0
	for _, complexity := range []batch.Complexity{batch.SimpleComplexity, batch.MediumComplexity, batch.ComplexComplexity} {
		for i := 0; i < counts[complexity]; i++ {
			id++
			records = append(records, &batch.Record{ID: id, Complexity: complexity, Content: "record"})
		}
	}
	return records
}

func TestPoolRoutesByComplexity(t *testing.T) {
	processors := map[string]batch.Processor{
		"simple":  tierProcessor(500),
		"medium":  tierProcessor(500),
		"complex": tierProcessor(500),
	}
	records := makeRecords(map[batch.Complexity]int{
		batch.SimpleComplexity:  6,
		batch.MediumComplexity:  3,
		batch.ComplexComplexity: 1,
	})

	pool := batch.NewPool(processors, batch.WithWorkers(4))
	metrics := pool.Process(context.Background(), records)

	assert.Equal(t, 10, metrics.TotalRecords)
	assert.Zero(t, metrics.FailedRecords)
	assert.Equal(t, 6, metrics.ByTier["simple"])
	assert.Equal(t, 3, metrics.ByTier["medium"])
	assert.Equal(t, 1, metrics.ByTier["complex"])

	for _, record := range records {
		assert.NoError(t, record.Err)
		assert.Equal(t, string(record.Complexity), record.Tier)
	}
}

func TestPoolSavingsAgainstComplexBaseline(t *testing.T) {
	processors := map[string]batch.Processor{
		"simple":  tierProcessor(1000),
		"complex": tierProcessor(1000),
	}
	records := makeRecords(map[batch.Complexity]int{
		batch.SimpleComplexity:  9,
		batch.ComplexComplexity: 1,
	})

	metrics := batch.NewPool(processors, batch.WithWorkers(2)).Process(context.Background(), records)

	// 9 records at the simple rate, 1 at the complex rate, baseline prices
	// all 10 at the complex rate.
	assert.InDelta(t, 9*0.000075+0.015, metrics.TotalCost, 1e-9)
	assert.InDelta(t, 10*0.015, metrics.BaselineCost, 1e-9)
	assert.Greater(t, metrics.SavingsPercent, 85.0)
	assert.Equal(t, 10000, metrics.TotalTokens)
}

func TestPoolUnknownTier(t *testing.T) {
	processors := map[string]batch.Processor{"simple": tierProcessor(100)}
	records := makeRecords(map[batch.Complexity]int{
		batch.SimpleComplexity:  2,
		batch.ComplexComplexity: 1,
	})

	metrics := batch.NewPool(processors, batch.WithWorkers(1)).Process(context.Background(), records)

	assert.Equal(t, 1, metrics.FailedRecords)
	var tierErr *batch.UnknownTierError
	require.ErrorAs(t, records[2].Err, &tierErr)
	assert.Equal(t, "complex", tierErr.Tier)
}

func TestPoolProcessorErrorsCountAsFailed(t *testing.T) {
	processors := map[string]batch.Processor{
		"simple": func(_ context.Context, record *batch.Record) error {
			if record.ID%2 == 0 {
				return assert.AnError
			}
			record.TokensUsed = 100
			return nil
		},
	}
	records := makeRecords(map[batch.Complexity]int{batch.SimpleComplexity: 4})

	metrics := batch.NewPool(processors, batch.WithWorkers(2)).Process(context.Background(), records)

	assert.Equal(t, 2, metrics.FailedRecords)
	assert.Equal(t, 200, metrics.TotalTokens, "failed records contribute no usage")
}

func TestPoolCustomRouter(t *testing.T) {
	var routed atomic.Int32
	processors := map[string]batch.Processor{"single": tierProcessor(50)}
	router := func(record batch.Record) string {
		routed.Add(1)
		return "single"
	}
	records := makeRecords(map[batch.Complexity]int{
		batch.SimpleComplexity:  2,
		batch.ComplexComplexity: 2,
	})

	metrics := batch.NewPool(processors, batch.WithRouter(router), batch.WithWorkers(2)).Process(context.Background(), records)

	assert.Equal(t, int32(4), routed.Load())
	assert.Equal(t, 4, metrics.ByTier["single"])
}

func TestPoolCancelledContext(t *testing.T) {
	processors := map[string]batch.Processor{"simple": tierProcessor(100)}
	records := makeRecords(map[batch.Complexity]int{batch.SimpleComplexity: 8})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	metrics := batch.NewPool(processors, batch.WithWorkers(2)).Process(ctx, records)

	assert.Equal(t, 8, metrics.FailedRecords)
	for _, record := range records {
		assert.ErrorIs(t, record.Err, context.Canceled)
	}
}

func TestTierCost(t *testing.T) {
	assert.InDelta(t, 0.000075, batch.TierCost("simple", 1000), 1e-12)
	assert.InDelta(t, 0.00015, batch.TierCost("medium", 1000), 1e-12)
	assert.InDelta(t, 0.015, batch.TierCost("complex", 1000), 1e-12)
	assert.InDelta(t, 0.015, batch.TierCost("unknown", 1000), 1e-12, "unknown tiers price at the complex rate")
	assert.Zero(t, batch.TierCost("simple", 0))
}
