package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ginjaninja78/cte-nfe-linker/internal/apperrors"
	"github.com/ginjaninja78/cte-nfe-linker/internal/extractor"
	"github.com/ginjaninja78/cte-nfe-linker/internal/types"
	"github.com/ginjaninja78/cte-nfe-linker/internal/validation"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	k1 = "35210123456789012345570000000112233445566111"
	k2 = "35210123456789012345570000000112233445566222"
	j1 = "35210123456789012345550000000112233444444444"
	j2 = "35210123456789012345550000000112233446666666"
)

// fakeExtractor serves precomputed results and counts calls.
type fakeExtractor struct {
	results map[string]types.DocumentResult
	errs    map[string]error
	calls   atomic.Int64
}

func (f *fakeExtractor) Extract(path string) (types.DocumentResult, error) {
	f.calls.Add(1)
	if err, ok := f.errs[path]; ok {
		return types.DocumentResult{}, err
	}
	return f.results[path], nil
}

func writeDoc(t *testing.T, dir, name, cte string, nfes ...string) string {
	t.Helper()
	body := "<cteProc><CTe><infCte><infCTeNorm><infDoc>\n"
	for _, nfe := range nfes {
		body += "  <infNFe>\n    <chave>" + nfe + "</chave>\n  </infNFe>\n"
	}
	body += "</infDoc></infCTeNorm></infCte></CTe>\n<protCTe><infProt><chCTe>" + cte + "</chCTe></infProt></protCTe></cteProc>\n"

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestAggregateThreeDocuments(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	paths := []string{
		writeDoc(t, dir, "a.xml", k1, j1),
		writeDoc(t, dir, "b.xml", k1, j2),
		writeDoc(t, dir, "c.xml", k2, j1),
	}

	agg := New(extractor.New(nil), Options{Workers: 3})
	got, err := agg.Aggregate(context.Background(), paths)
	require.NoError(t, err)

	want := types.LinkMap{
		k1: {j1: {"infNFe": {}}, j2: {"infNFe": {}}},
		k2: {j1: {"infNFe": {}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("aggregated map mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{k1, k2}, got.TransportKeys())
	assert.Len(t, got.InvoiceKeys(k1), 2)
}

// randomCorpus builds n documents drawn from small key pools so that
// documents overlap heavily. Some documents are degenerate.
func randomCorpus(seed int64, n int) (*fakeExtractor, []string) {
	rng := rand.New(rand.NewSource(seed))
	ctes := []string{"K1", "K2", "K3", "K4"}
	nfes := []string{"J1", "J2", "J3", "J4", "J5", "J6"}
	origins := []string{"infNFe", "chNFe", "infNFeTranspParcial"}

	f := &fakeExtractor{results: make(map[string]types.DocumentResult)}
	paths := make([]string, n)
	for i := range n {
		path := fmt.Sprintf("doc-%03d.xml", i)
		r := types.NewDocumentResult(path)
		for range rng.Intn(3) {
			r.TransportKeys.Add(ctes[rng.Intn(len(ctes))])
		}
		for range rng.Intn(4) {
			r.Invoices.Add(nfes[rng.Intn(len(nfes))], origins[rng.Intn(len(origins))])
		}
		f.results[path] = r
		paths[i] = path
	}
	return f, paths
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, paths := randomCorpus(1, 60)
	want, err := New(f, Options{Workers: 1}).Aggregate(context.Background(), paths)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	rng := rand.New(rand.NewSource(2))
	for i := range 10 {
		shuffled := append([]string(nil), paths...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := New(f, Options{Workers: 4}).Aggregate(context.Background(), shuffled)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("permutation %d differs (-want +got):\n%s", i, diff)
		}
	}
}

func TestAggregateIsWorkerCountIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, paths := randomCorpus(3, 40)
	want, err := New(f, Options{Workers: 1}).Aggregate(context.Background(), paths)
	require.NoError(t, err)

	for _, workers := range []int{0, 2, 3, 7, 40, 100} {
		got, err := New(f, Options{Workers: workers}).Aggregate(context.Background(), paths)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("workers=%d differs (-want +got):\n%s", workers, diff)
		}
	}
}

func TestAggregateIsPartitionIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, paths := randomCorpus(4, 50)
	agg := New(f, Options{Workers: 3})

	want, err := agg.Aggregate(context.Background(), paths)
	require.NoError(t, err)

	for _, size := range []int{1, 7, 16, 49} {
		var batches []types.LinkMap
		for start := 0; start < len(paths); start += size {
			end := min(start+size, len(paths))
			batch, err := agg.Aggregate(context.Background(), paths[start:end])
			require.NoError(t, err)
			batches = append(batches, batch)
		}

		got := Reduce(batches...)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("batch size %d differs (-want +got):\n%s", size, diff)
		}
	}
}

func TestAggregateSkipsDegenerateResults(t *testing.T) {
	f := &fakeExtractor{results: map[string]types.DocumentResult{
		"cte-only.xml": {Path: "cte-only.xml", TransportKeys: types.KeySet{"K1": {}}, Invoices: types.InvoiceOrigins{}},
		"nfe-only.xml": {Path: "nfe-only.xml", TransportKeys: types.KeySet{}, Invoices: types.InvoiceOrigins{"J1": {"infNFe": {}}}},
	}}

	got, err := New(f, Options{}).Aggregate(context.Background(), []string{"cte-only.xml", "nfe-only.xml"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregateEmptyInput(t *testing.T) {
	got, err := New(&fakeExtractor{}, Options{}).Aggregate(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAggregatePropagatesError(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, paths := randomCorpus(5, 200)
	bad := &validation.ValidationError{Path: paths[17], Key: j1, FoundCode: "55", ExpectedCode: "57", Reason: validation.ReasonCode}
	f.errs = map[string]error{paths[17]: bad}

	got, err := New(f, Options{Workers: 4}).Aggregate(context.Background(), paths)
	require.Error(t, err)
	assert.Nil(t, got)

	var verr *validation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, paths[17], verr.Path)
}

func TestAggregateReadErrorStopsRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	paths := []string{
		writeDoc(t, dir, "a.xml", k1, j1),
		filepath.Join(dir, "missing.xml"),
	}

	_, err := New(extractor.New(nil), Options{Workers: 2}).Aggregate(context.Background(), paths)

	var rerr *apperrors.FileReadError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, paths[1], rerr.Path)
}

func TestAggregateCancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, paths := randomCorpus(6, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f, Options{Workers: 2}).Aggregate(ctx, paths)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReduce(t *testing.T) {
	assert.Empty(t, Reduce())
	assert.Empty(t, Reduce(nil))

	maps := []types.LinkMap{
		{"K1": {"J1": {"a": {}}}},
		{"K1": {"J1": {"b": {}}}},
		{"K2": {"J2": {"a": {}}}},
		nil,
		{"K1": {"J3": {"a": {}}}},
	}
	want := types.LinkMap{
		"K1": {"J1": {"a": {}, "b": {}}, "J3": {"a": {}}},
		"K2": {"J2": {"a": {}}},
	}
	if diff := cmp.Diff(want, Reduce(maps...)); diff != "" {
		t.Fatalf("reduce mismatch (-want +got):\n%s", diff)
	}
}
