// =============================================================================
// CTe/NFe Key Linker - Shared Types
// =============================================================================
//
// This package contains the key sets and maps shared by the extractor, the
// aggregator and the report formatter. Keeping them here avoids import cycles
// between those packages.
//
// AGGREGATION MODEL:
//   A LinkMap behaves as a monoid:
//   - Identity: NewLinkMap() (no transport keys)
//   - Combine:  union of unions (Merge / Combine)
//   Combine is associative, commutative and idempotent, so the final map does
//   not depend on file order, batching or the number of workers.
//
// =============================================================================

package types

import (
	"maps"
	"slices"
)

// =============================================================================
// SETS
// =============================================================================

// KeySet is a set of normalized 44-digit fiscal keys.
type KeySet map[string]struct{}

// Add inserts a key into the set.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// Has reports whether the key is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the keys in lexicographic order.
func (s KeySet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// OriginSet is the set of origin markers (e.g. "infNFe") an invoice key was
// found under.
type OriginSet map[string]struct{}

// Add inserts an origin marker.
func (s OriginSet) Add(origin string) {
	s[origin] = struct{}{}
}

// Union adds every element of other to s.
func (s OriginSet) Union(other OriginSet) {
	for origin := range other {
		s[origin] = struct{}{}
	}
}

// Sorted returns the origin markers in lexicographic order.
func (s OriginSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// InvoiceOrigins maps an invoice key to the origins it appeared under.
type InvoiceOrigins map[string]OriginSet

// Add records that invoice was found under origin.
func (m InvoiceOrigins) Add(invoice, origin string) {
	set, ok := m[invoice]
	if !ok {
		set = make(OriginSet)
		m[invoice] = set
	}
	set.Add(origin)
}

// Sorted returns the invoice keys in lexicographic order.
func (m InvoiceOrigins) Sorted() []string {
	return slices.Sorted(maps.Keys(m))
}

// =============================================================================
// PER-DOCUMENT RESULT
// =============================================================================

// DocumentResult holds what the extractor found in a single document.
// It is treated as immutable once returned by the extractor.
type DocumentResult struct {
	// Path is the file the result was extracted from.
	Path string

	// TransportKeys contains every valid CTe key of the document.
	TransportKeys KeySet

	// Invoices maps every valid NFe key of the document to its origins.
	Invoices InvoiceOrigins
}

// NewDocumentResult returns an empty result for the given path.
func NewDocumentResult(path string) DocumentResult {
	return DocumentResult{
		Path:          path,
		TransportKeys: make(KeySet),
		Invoices:      make(InvoiceOrigins),
	}
}

// IsDegenerate reports whether the result has nothing to contribute:
// no transport keys or no invoice keys.
func (r DocumentResult) IsDegenerate() bool {
	return len(r.TransportKeys) == 0 || len(r.Invoices) == 0
}

// =============================================================================
// AGGREGATED MAP
// =============================================================================

// LinkMap maps a transport key to the invoice keys it references, each with
// its set of origins. Key order is applied when reading (see TransportKeys).
type LinkMap map[string]InvoiceOrigins

// NewLinkMap returns the empty map, the identity of Combine.
func NewLinkMap() LinkMap {
	return make(LinkMap)
}

// Add folds a document result into the map: every invoice of the document is
// linked to every transport key of the document. Degenerate results are
// ignored.
func (m LinkMap) Add(r DocumentResult) {
	if r.IsDegenerate() {
		return
	}
	for cte := range r.TransportKeys {
		m.mergeInvoices(cte, r.Invoices)
	}
}

// Merge unions other into m. other is left untouched and shares no sets
// with m afterwards.
func (m LinkMap) Merge(other LinkMap) {
	for cte, invoices := range other {
		m.mergeInvoices(cte, invoices)
	}
}

// mergeInvoices unions invoices into the entry for cte. Origin sets are
// copied so that two transport keys never share the same set.
func (m LinkMap) mergeInvoices(cte string, invoices InvoiceOrigins) {
	dst, ok := m[cte]
	if !ok {
		dst = make(InvoiceOrigins, len(invoices))
		m[cte] = dst
	}
	for invoice, origins := range invoices {
		set, ok := dst[invoice]
		if !ok {
			set = make(OriginSet, len(origins))
			dst[invoice] = set
		}
		set.Union(origins)
	}
}

// Combine merges b into a and returns a. A nil a is treated as the identity.
func Combine(a, b LinkMap) LinkMap {
	if a == nil {
		a = NewLinkMap()
	}
	a.Merge(b)
	return a
}

// TransportKeys returns the transport keys in lexicographic order.
func (m LinkMap) TransportKeys() []string {
	return slices.Sorted(maps.Keys(m))
}

// InvoiceKeys returns the invoice keys linked to cte in lexicographic order.
func (m LinkMap) InvoiceKeys(cte string) []string {
	return m[cte].Sorted()
}
