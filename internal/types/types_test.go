package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func doc(path string, ctes []string, invoices map[string][]string) DocumentResult {
	r := NewDocumentResult(path)
	for _, cte := range ctes {
		r.TransportKeys.Add(cte)
	}
	for nfe, origins := range invoices {
		for _, origin := range origins {
			r.Invoices.Add(nfe, origin)
		}
	}
	return r
}

func TestLinkMapAdd(t *testing.T) {
	m := NewLinkMap()
	m.Add(doc("a", []string{"K1", "K2"}, map[string][]string{"J1": {"infNFe"}}))

	assert.Equal(t, LinkMap{
		"K1": {"J1": {"infNFe": {}}},
		"K2": {"J1": {"infNFe": {}}},
	}, m)
}

func TestLinkMapAddDegenerate(t *testing.T) {
	m := NewLinkMap()
	m.Add(doc("a", []string{"K1"}, nil))
	m.Add(doc("b", nil, map[string][]string{"J1": {"infNFe"}}))
	assert.Empty(t, m)
}

func TestLinkMapAddIsIdempotent(t *testing.T) {
	r := doc("a", []string{"K1"}, map[string][]string{"J1": {"infNFe", "chNFe"}})

	once := NewLinkMap()
	once.Add(r)

	twice := NewLinkMap()
	twice.Add(r)
	twice.Add(r)

	assert.Equal(t, once, twice)
}

func TestLinkMapDoesNotAliasOriginSets(t *testing.T) {
	m := NewLinkMap()
	m.Add(doc("a", []string{"K1", "K2"}, map[string][]string{"J1": {"infNFe"}}))
	m.Add(doc("b", []string{"K1"}, map[string][]string{"J1": {"chNFe"}}))

	assert.Equal(t, OriginSet{"infNFe": {}, "chNFe": {}}, m["K1"]["J1"])
	assert.Equal(t, OriginSet{"infNFe": {}}, m["K2"]["J1"])
}

func TestMergeLeavesSourceUntouched(t *testing.T) {
	a := LinkMap{"K1": {"J1": {"infNFe": {}}}}
	b := LinkMap{"K1": {"J1": {"chNFe": {}}, "J2": {"infNFe": {}}}}

	a.Merge(b)
	a["K1"]["J2"].Add("other")

	assert.Equal(t, LinkMap{"K1": {"J1": {"infNFe": {}, "chNFe": {}}, "J2": {"infNFe": {}, "other": {}}}}, a)
	assert.Equal(t, LinkMap{"K1": {"J1": {"chNFe": {}}, "J2": {"infNFe": {}}}}, b)
}

func TestCombineLaws(t *testing.T) {
	x := func() LinkMap { return LinkMap{"K1": {"J1": {"infNFe": {}}}} }
	y := func() LinkMap { return LinkMap{"K1": {"J2": {"infNFe": {}}}, "K2": {"J1": {"chNFe": {}}}} }
	z := func() LinkMap { return LinkMap{"K2": {"J1": {"infNFe": {}}}} }

	t.Run("identity", func(t *testing.T) {
		assert.Equal(t, x(), Combine(NewLinkMap(), x()))
		assert.Equal(t, x(), Combine(x(), NewLinkMap()))
		assert.Equal(t, x(), Combine(nil, x()))
	})

	t.Run("commutative", func(t *testing.T) {
		assert.Equal(t, Combine(x(), y()), Combine(y(), x()))
	})

	t.Run("associative", func(t *testing.T) {
		assert.Equal(t, Combine(Combine(x(), y()), z()), Combine(x(), Combine(y(), z())))
	})

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, x(), Combine(x(), x()))
	})
}

func TestSortedAccessors(t *testing.T) {
	m := LinkMap{
		"K2": {"J1": {"infNFe": {}}},
		"K1": {"J3": {"b": {}, "a": {}}, "J1": {"infNFe": {}}},
	}
	assert.Equal(t, []string{"K1", "K2"}, m.TransportKeys())
	assert.Equal(t, []string{"J1", "J3"}, m.InvoiceKeys("K1"))
	assert.Empty(t, m.InvoiceKeys("missing"))
	assert.Equal(t, []string{"a", "b"}, m["K1"]["J3"].Sorted())
	assert.Equal(t, []string{"x", "y"}, KeySet{"y": {}, "x": {}}.Sorted())
}
