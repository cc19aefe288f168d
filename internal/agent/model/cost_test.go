package model

import (
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestResolvePricing(t *testing.T) {
	p := ResolvePricing("gpt-4o-mini")
	assert.Equal(t, 0.15, p.InputPerM)
	assert.Equal(t, 0.60, p.OutputPerM)

	// dated variants resolve to the base model
	dated := ResolvePricing("gpt-4o-2024-08-06")
	assert.Equal(t, ResolvePricing("gpt-4o"), dated)

	// local and unknown models cost nothing
	assert.Equal(t, Pricing{}, ResolvePricing("llama3.1"))
	assert.Equal(t, Pricing{}, ResolvePricing(""))
}

func TestComputeCost(t *testing.T) {
	usage := &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 500_000, TotalTokens: 1_500_000}
	p := Pricing{InputPerM: 2.50, OutputPerM: 10.00}

	in, out, total := ComputeCost(usage, p)
	assert.InDelta(t, 2.50, in, 1e-9)
	assert.InDelta(t, 5.00, out, 1e-9)
	assert.InDelta(t, 7.50, total, 1e-9)

	in, out, total = ComputeCost(nil, p)
	assert.Zero(t, in)
	assert.Zero(t, out)
	assert.Zero(t, total)
}
