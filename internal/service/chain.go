package service

import (
	"github.com/custodia-project/custodia/internal/core"
)

// ChainDimension picks which scope hint partitions the audit ledger into
// chains. Partitioning bounds verification cost: verify walks one chain, not
// the whole ledger.
type ChainDimension string

const (
	ChainByTenant ChainDimension = "tenant"
	ChainByOrg    ChainDimension = "org"
	ChainGlobal   ChainDimension = "global"
)

func (d ChainDimension) IsValid() bool {
	return d == ChainByTenant || d == ChainByOrg || d == ChainGlobal
}

// GlobalChainID is the fallback chain for requests without a value for the
// configured dimension.
const GlobalChainID = "global"

// ChainIDFor maps a request's scope hints to the chain its audit entries
// belong to.
func ChainIDFor(dimension ChainDimension, hints core.ScopeHints) string {
	switch dimension {
	case ChainByTenant:
		if hints.TenantID != "" {
			return "tenant:" + hints.TenantID
		}
	case ChainByOrg:
		if hints.OrgID != "" {
			return "org:" + hints.OrgID
		}
	}
	return GlobalChainID
}
