// Package catalog builds the immutable SymbolCatalog lookup table described in
// spec.md §4.1: for each (canonical symbol, provider) pair, the provider's own
// spelling of that symbol, or nothing if the provider does not support it.
//
// Loading follows the teacher's directory-of-JSON-files convention (chains.json,
// assets.json, sources.json, pairs.json in yetaxyz-oracle's config loader) collapsed
// to the single mapping the spec calls for.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neooracle/pricefeed/internal/oraclerr"
	"github.com/neooracle/pricefeed/internal/quote"
)

// Catalog is an immutable, once-built lookup table. Safe for concurrent read access
// from every provider adapter goroutine.
type Catalog struct {
	// mapping[provider][canonical] = provider-native symbol
	mapping map[quote.Provider]map[quote.CanonicalSymbol]string
}

// symbolsFile is the on-disk shape of symbols.json: for each canonical symbol, the
// set of providers that support it and their native spelling.
type symbolsFile map[string]map[string]string

// Load reads <dir>/symbols.json and builds a Catalog. Entries that are absent or
// the empty string count as unsupported per spec §3.
func Load(dir string) (*Catalog, error) {
	path := filepath.Join(dir, "symbols.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", oraclerr.ErrConfig, path, err)
	}
	var raw symbolsFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", oraclerr.ErrConfig, path, err)
	}
	return FromMap(raw)
}

// FromMap builds a Catalog directly from an in-memory mapping, used by tests and by
// callers that assemble the table from multiple sources instead of one JSON file.
func FromMap(raw map[string]map[string]string) (*Catalog, error) {
	c := &Catalog{mapping: make(map[quote.Provider]map[quote.CanonicalSymbol]string)}
	for canonical, perProvider := range raw {
		sym := quote.CanonicalSymbol(strings.ToUpper(canonical))
		if sym == "" {
			return nil, fmt.Errorf("%w: empty canonical symbol", oraclerr.ErrConfig)
		}
		for providerName, native := range perProvider {
			if native == "" {
				continue // absent/empty entry means unsupported, never stored
			}
			p := quote.Provider(providerName)
			if c.mapping[p] == nil {
				c.mapping[p] = make(map[quote.CanonicalSymbol]string)
			}
			c.mapping[p][sym] = native
		}
	}
	return c, nil
}

// SourceSymbol returns provider P's native spelling of canonical, or ("", false) if
// P does not support it.
func (c *Catalog) SourceSymbol(canonical quote.CanonicalSymbol, provider quote.Provider) (string, bool) {
	perSymbol, ok := c.mapping[provider]
	if !ok {
		return "", false
	}
	native, ok := perSymbol[canonical]
	return native, ok
}

// IsSupported reports whether provider supports canonical. Lookups never fail; an
// unknown pair simply reports false.
func (c *Catalog) IsSupported(canonical quote.CanonicalSymbol, provider quote.Provider) bool {
	_, ok := c.SourceSymbol(canonical, provider)
	return ok
}

// SupportedSymbols returns the set of canonical symbols provider supports.
func (c *Catalog) SupportedSymbols(provider quote.Provider) []quote.CanonicalSymbol {
	perSymbol := c.mapping[provider]
	out := make([]quote.CanonicalSymbol, 0, len(perSymbol))
	for sym := range perSymbol {
		out = append(out, sym)
	}
	return out
}

// Filter narrows requested down to the subset provider supports, preserving order.
// Adapters MUST call this before issuing any HTTP call (spec §4.1).
func (c *Catalog) Filter(requested []quote.CanonicalSymbol, provider quote.Provider) []quote.CanonicalSymbol {
	out := make([]quote.CanonicalSymbol, 0, len(requested))
	for _, sym := range requested {
		if c.IsSupported(sym, provider) {
			out = append(out, sym)
		}
	}
	return out
}
