package swaps

import "github.com/ggonzalez94/solchat/internal/model"

// MetadataLookup resolves a mint address; ok is false when nothing is known.
type MetadataLookup func(address string) (meta model.TokenMetadata, ok bool)

// Addresses lists the distinct mint addresses across swaps in first-seen order.
func Addresses(swaps []model.SwapTransaction) []string {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, s := range swaps {
		for _, flows := range [][]model.TokenFlow{s.Sold, s.Bought} {
			for _, f := range flows {
				if f.Address == "" || seen[f.Address] {
					continue
				}
				seen[f.Address] = true
				out = append(out, f.Address)
			}
		}
	}
	return out
}

// Enrich replaces address symbols with resolved metadata and re-renders price
// displays. Unresolved flows keep their address as the symbol.
func Enrich(swaps []model.SwapTransaction, lookup MetadataLookup) {
	for i := range swaps {
		enrichFlows(swaps[i].Sold, lookup)
		enrichFlows(swaps[i].Bought, lookup)
		if p := swaps[i].Price; p != nil && len(swaps[i].Sold) == 1 && len(swaps[i].Bought) == 1 {
			p.InputSymbol = swaps[i].Sold[0].Symbol
			p.OutputSymbol = swaps[i].Bought[0].Symbol
			p.Display = renderRatio(p.OutputSymbol, p.Ratio, p.InputSymbol)
		}
	}
}

func enrichFlows(flows []model.TokenFlow, lookup MetadataLookup) {
	for j := range flows {
		meta, ok := lookup(flows[j].Address)
		if !ok {
			continue
		}
		if meta.Symbol != "" {
			flows[j].Symbol = meta.Symbol
		}
		if meta.Name != "" {
			flows[j].Name = meta.Name
		}
		if meta.PriceUSD != nil {
			price := *meta.PriceUSD
			flows[j].CurrentPrice = &price
		}
	}
}
