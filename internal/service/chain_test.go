package service

import (
	"testing"

	"github.com/custodia-project/custodia/internal/core"
)

func TestChainIDFor(t *testing.T) {
	tests := []struct {
		name      string
		dimension ChainDimension
		hints     core.ScopeHints
		want      string
	}{
		{name: "tenant dimension with hint", dimension: ChainByTenant, hints: core.ScopeHints{TenantID: "acme"}, want: "tenant:acme"},
		{name: "tenant dimension without hint", dimension: ChainByTenant, want: GlobalChainID},
		{name: "org dimension with hint", dimension: ChainByOrg, hints: core.ScopeHints{OrgID: "umbrella"}, want: "org:umbrella"},
		{name: "org dimension ignores tenant hint", dimension: ChainByOrg, hints: core.ScopeHints{TenantID: "acme"}, want: GlobalChainID},
		{name: "global dimension", dimension: ChainGlobal, hints: core.ScopeHints{TenantID: "acme", OrgID: "umbrella"}, want: GlobalChainID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChainIDFor(tt.dimension, tt.hints); got != tt.want {
				t.Errorf("ChainIDFor(%s, %+v) = %q, want %q", tt.dimension, tt.hints, got, tt.want)
			}
		})
	}
}

func TestNewDecisionServiceDefaultsDimension(t *testing.T) {
	svc := NewDecisionService(nil, nil, nil, ChainDimension("bogus"))
	if svc.dimension != ChainByTenant {
		t.Errorf("dimension = %s, want tenant fallback for an invalid dimension", svc.dimension)
	}
}
