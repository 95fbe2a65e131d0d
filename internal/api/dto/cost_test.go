package dto

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMeteredCost(t *testing.T) {
	d := decimal.RequireFromString

	tests := []struct {
		name  string
		costs CostComponents
		want  string
	}{
		{
			name:  "pag",
			costs: CostComponents{LLMCost: d("0.1"), STTCost: d("0.2"), TotalCost: d("0.3")},
			want:  "0.3",
		},
		{
			name:  "fixed keeps only overage",
			costs: CostComponents{FixedCost: d("100"), OverageCost: d("0.1"), TotalCost: d("100.1")},
			want:  "0.1",
		},
		{
			name:  "dedicated is flat",
			costs: CostComponents{DedicatedCost: d("145"), TotalCost: d("145")},
			want:  "0",
		},
		{
			name:  "hybrid keeps the metered half",
			costs: CostComponents{LLMCost: d("0.05"), DedicatedCost: d("72.5"), TotalCost: d("72.55")},
			want:  "0.05",
		},
		{
			name:  "injection over dedicated is flat",
			costs: CostComponents{DedicatedCost: d("145"), InjectionCost: d("145"), TotalCost: d("290")},
			want:  "0",
		},
		{
			name:  "injection over pag is metered",
			costs: CostComponents{LLMCost: d("0.1"), InjectionCost: d("0.1"), TotalCost: d("0.2")},
			want:  "0.2",
		},
		{
			name:  "cap clamps the charge",
			costs: CostComponents{LLMCost: d("12"), TotalCost: d("10")},
			want:  "10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.costs.MeteredCost()
			assert.True(t, d(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}
