package resolve

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdf-hub/rdf-hub/internal/cache"
	"github.com/rdf-hub/rdf-hub/internal/convert"
	"github.com/rdf-hub/rdf-hub/internal/failure"
	"github.com/rdf-hub/rdf-hub/internal/fetch"
	"github.com/rdf-hub/rdf-hub/internal/format"
	"github.com/rdf-hub/rdf-hub/internal/negotiate"
)

const ontURI = "https://w3id.org/example/ontology"

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	accepts []format.Format
	doc     *fetch.Document
	err     error
	gate    chan struct{}
	started chan struct{}
	panics  any
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri *url.URL, accept format.Format, timeout time.Duration) (*fetch.Document, error) {
	f.mu.Lock()
	f.calls++
	f.accepts = append(f.accepts, accept)
	first := f.calls == 1
	f.mu.Unlock()

	if f.started != nil && first {
		close(f.started)
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.panics != nil {
		panic(f.panics)
	}
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	return &doc, nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeConverter struct {
	mu   sync.Mutex
	jobs []convert.Job
	// fail 中列出的源格式会转换失败。
	fail map[string]bool
}

func (c *fakeConverter) Convert(ctx context.Context, job convert.Job) (convert.Result, error) {
	c.mu.Lock()
	c.jobs = append(c.jobs, job)
	c.mu.Unlock()
	if c.fail[job.From.Key] {
		return convert.Result{}, errors.New("parse error")
	}
	out := append([]byte(job.To.Key+"<-"+job.From.Key+":"), job.Input...)
	return convert.Result{Data: out, Converter: "fake"}, nil
}

func (c *fakeConverter) Jobs() []convert.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]convert.Job(nil), c.jobs...)
}

// selectiveConverter 只声明支持 unsupported 以外的源格式。
type selectiveConverter struct {
	fakeConverter
	unsupported map[string]bool
}

func (c *selectiveConverter) Supports(from, to format.Format) bool {
	return !c.unsupported[from.Key]
}

type harness struct {
	store     cache.Store
	fetcher   *fakeFetcher
	converter *fakeConverter
	engine    *Engine
}

func newHarness(t *testing.T, doc *fetch.Document) *harness {
	t.Helper()
	store, err := cache.NewStore(t.TempDir(), format.Builtin())
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h := &harness{
		store:     store,
		fetcher:   &fakeFetcher{doc: doc},
		converter: &fakeConverter{},
	}
	h.engine, err = NewEngine(Options{Store: store, Fetcher: h.fetcher, Converter: h.converter, Logger: logger})
	require.NoError(t, err)
	return h
}

func (h *harness) seed(t *testing.T, f format.Format, body string) {
	t.Helper()
	_, err := h.store.Put(context.Background(), cache.Locator{URI: ontURI, Format: f}, bytes.NewReader([]byte(body)), cache.PutOptions{})
	require.NoError(t, err)
}

func (h *harness) read(t *testing.T, f format.Format) (string, bool) {
	t.Helper()
	res, err := h.store.Get(context.Background(), cache.Locator{URI: ontURI, Format: f})
	if errors.Is(err, cache.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	defer res.Reader.Close()
	body, err := io.ReadAll(res.Reader)
	require.NoError(t, err)
	return string(body), true
}

func newRequest(t *testing.T, target format.Format, pref negotiate.Preference) negotiate.Request {
	t.Helper()
	u, err := url.Parse(ontURI)
	require.NoError(t, err)
	return negotiate.Request{
		URI:            u,
		Target:         target,
		UpstreamAccept: target,
		Preference:     pref,
		Timeout:        time.Second,
	}
}

func TestResolveDirectFetchPersistsAndSkipsConverter(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("ttl-body"), Format: format.Turtle})

	res, err := h.engine.Resolve(context.Background(), newRequest(t, format.Turtle, negotiate.PreferDownload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetch, res.Outcome)
	assert.Equal(t, []byte("ttl-body"), res.Body)
	assert.Empty(t, h.converter.Jobs())

	body, ok := h.read(t, format.Turtle)
	require.True(t, ok)
	assert.Equal(t, "ttl-body", body)
}

func TestResolveSecondCallIsCacheHit(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("ttl-body"), Format: format.Turtle})
	req := newRequest(t, format.Turtle, negotiate.PreferDownload)

	_, err := h.engine.Resolve(context.Background(), req)
	require.NoError(t, err)

	h.fetcher.err = errors.New("network disabled")
	res, err := h.engine.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCacheHit, res.Outcome)
	assert.Nil(t, res.Body)
	assert.Equal(t, 1, h.fetcher.Calls())

	body, ok := h.read(t, format.Turtle)
	require.True(t, ok)
	assert.Equal(t, "ttl-body", body)
}

func TestResolveFetchThenConvert(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("<rdf/>"), Format: format.RDFXML})

	res, err := h.engine.Resolve(context.Background(), newRequest(t, format.JSONLD, negotiate.PreferDownload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetchConvert, res.Outcome)
	assert.Equal(t, format.RDFXML, res.SourceFormat)
	assert.Equal(t, "fake", res.Converter)
	assert.Nil(t, res.Body)

	jobs := h.converter.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, format.RDFXML, jobs[0].From)
	assert.Equal(t, format.JSONLD, jobs[0].To)
	assert.Equal(t, ontURI, jobs[0].BaseURI)

	fetched, ok := h.read(t, format.RDFXML)
	require.True(t, ok, "fetched document is always persisted")
	assert.Equal(t, "<rdf/>", fetched)

	converted, ok := h.read(t, format.JSONLD)
	require.True(t, ok)
	assert.Equal(t, "jsonld<-rdfxml:<rdf/>", converted)
}

func TestResolveNonMachineReadableOrigin(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("<html></html>"), Format: format.HTML})

	_, err := h.engine.Resolve(context.Background(), newRequest(t, format.Turtle, negotiate.PreferDownload))
	require.Error(t, err)
	classified := failure.From(err)
	assert.Equal(t, failure.KindNotConvertible, classified.Kind)
	assert.Contains(t, classified.Message, "not machine-readable")
	assert.Empty(t, h.converter.Jobs())

	_, ok := h.read(t, format.Turtle)
	assert.False(t, ok, "no entry may be written for the target format")
	_, ok = h.read(t, format.HTML)
	assert.True(t, ok)
}

func TestResolveConversionFailureAfterFetch(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("<rdf/>"), Format: format.RDFXML})
	h.converter.fail = map[string]bool{format.RDFXML.Key: true}

	_, err := h.engine.Resolve(context.Background(), newRequest(t, format.JSONLD, negotiate.PreferDownload))
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindConversionFailure))
	_, ok := h.read(t, format.JSONLD)
	assert.False(t, ok)
}

func TestResolveUpstreamFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.err = errors.New("connection refused")

	_, err := h.engine.Resolve(context.Background(), newRequest(t, format.Turtle, negotiate.PreferDownload))
	require.Error(t, err)
	assert.True(t, failure.IsKind(err, failure.KindUpstreamFailure))

	h.fetcher.err = failure.New(failure.KindUpstreamFailure, "upstream responded with status 503")
	_, err = h.engine.Resolve(context.Background(), newRequest(t, format.Turtle, negotiate.PreferDownload))
	assert.Equal(t, "upstream responded with status 503", failure.From(err).Message)
}

func TestResolvePreferConvertUsesCachedFormat(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("fresh"), Format: format.JSONLD})
	h.seed(t, format.RDFXML, "<cached/>")

	res, err := h.engine.Resolve(context.Background(), newRequest(t, format.JSONLD, negotiate.PreferConvert))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCacheConvert, res.Outcome)
	assert.Equal(t, format.RDFXML, res.SourceFormat)
	assert.Equal(t, 0, h.fetcher.Calls(), "no origin fetch when a cached candidate converts")

	jobs := h.converter.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, format.RDFXML, jobs[0].From)
	assert.Equal(t, []byte("<cached/>"), jobs[0].Input)

	converted, ok := h.read(t, format.JSONLD)
	require.True(t, ok)
	assert.Equal(t, "jsonld<-rdfxml:<cached/>", converted)
}

func TestResolvePreferConvertTriesCandidatesInRegistryOrder(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("fresh"), Format: format.JSONLD})
	h.seed(t, format.RDFXML, "<cached/>")
	h.seed(t, format.NTriples, "<a> <b> <c> .")
	h.seed(t, format.HTML, "<html/>")
	h.converter.fail = map[string]bool{format.NTriples.Key: true}

	res, err := h.engine.Resolve(context.Background(), newRequest(t, format.JSONLD, negotiate.PreferConvert))
	require.NoError(t, err)
	assert.Equal(t, format.RDFXML, res.SourceFormat)

	jobs := h.converter.Jobs()
	require.Len(t, jobs, 2, "html is not machine-readable and must not be tried")
	assert.Equal(t, format.NTriples, jobs[0].From)
	assert.Equal(t, format.RDFXML, jobs[1].From)
}

func TestResolvePreferConvertSkipsUnsupportedCandidates(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("fresh"), Format: format.JSONLD})
	h.seed(t, format.NTriples, "<a> <b> <c> .")
	h.seed(t, format.RDFXML, "<cached/>")

	conv := &selectiveConverter{unsupported: map[string]bool{format.NTriples.Key: true}}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	engine, err := NewEngine(Options{Store: h.store, Fetcher: h.fetcher, Converter: conv, Logger: logger})
	require.NoError(t, err)

	res, err := engine.Resolve(context.Background(), newRequest(t, format.JSONLD, negotiate.PreferConvert))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCacheConvert, res.Outcome)
	assert.Equal(t, format.RDFXML, res.SourceFormat)

	jobs := conv.Jobs()
	require.Len(t, jobs, 1, "unsupported candidates are never handed to the converter")
	assert.Equal(t, format.RDFXML, jobs[0].From)
}

func TestResolvePreferConvertFallsBackToFetch(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("fresh"), Format: format.JSONLD})
	h.seed(t, format.RDFXML, "<cached/>")
	h.converter.fail = map[string]bool{format.RDFXML.Key: true}

	res, err := h.engine.Resolve(context.Background(), newRequest(t, format.JSONLD, negotiate.PreferConvert))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetch, res.Outcome)
	assert.Equal(t, 1, h.fetcher.Calls())
}

func TestResolvePreferDownloadSkipsCachedConversion(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("fresh"), Format: format.JSONLD})
	h.seed(t, format.RDFXML, "<cached/>")

	res, err := h.engine.Resolve(context.Background(), newRequest(t, format.JSONLD, negotiate.PreferDownload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetch, res.Outcome)
	assert.Equal(t, 1, h.fetcher.Calls(), "download preference always fetches")
	assert.Empty(t, h.converter.Jobs())
}

func TestResolveUsesUpstreamAccept(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("ttl"), Format: format.Turtle})
	req := newRequest(t, format.JSONLD, negotiate.PreferDownload)
	req.UpstreamAccept = format.Turtle

	res, err := h.engine.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetchConvert, res.Outcome)
	assert.Equal(t, []format.Format{format.Turtle}, h.fetcher.accepts)
}

func TestResolveStorageFailure(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("ttl"), Format: format.Turtle})
	dir := h.store.Dir(ontURI)
	require.NoError(t, os.WriteFile(dir, []byte("not a dir"), 0o644))

	_, err := h.engine.Resolve(context.Background(), newRequest(t, format.Turtle, negotiate.PreferDownload))
	require.Error(t, err)
	classified := failure.From(err)
	assert.Equal(t, failure.KindStorageFailure, classified.Kind)
	assert.NotContains(t, classified.Message, dir)
}

func TestResolveCoalescesConcurrentRequests(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("ttl"), Format: format.Turtle})
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan struct{})
	req := newRequest(t, format.Turtle, negotiate.PreferDownload)

	const callers = 8
	var ready, done sync.WaitGroup
	results := make([]*Resolution, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		ready.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			ready.Done()
			results[i], errs[i] = h.engine.Resolve(context.Background(), req)
		}(i)
	}
	ready.Wait()
	<-h.fetcher.started
	time.Sleep(50 * time.Millisecond)
	close(h.fetcher.gate)
	done.Wait()

	assert.Equal(t, 1, h.fetcher.Calls())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("ttl"), results[i].Body)
	}
}

func TestResolveCallerCancellationLetsWorkFinish(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("ttl"), Format: format.Turtle})
	h.fetcher.gate = make(chan struct{})
	h.fetcher.started = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.engine.Resolve(ctx, newRequest(t, format.Turtle, negotiate.PreferDownload))
		errCh <- err
	}()

	<-h.fetcher.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(h.fetcher.gate)
	require.Eventually(t, func() bool {
		_, ok := h.read(t, format.Turtle)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "started fetch should still populate the cache")
}

func TestResolveRecoversFromPanic(t *testing.T) {
	h := newHarness(t, &fetch.Document{Body: []byte("ttl"), Format: format.Turtle})
	h.fetcher.panics = "nil map write"

	_, err := h.engine.Resolve(context.Background(), newRequest(t, format.Turtle, negotiate.PreferDownload))
	require.Error(t, err)
	classified := failure.From(err)
	assert.Equal(t, failure.KindInternal, classified.Kind)
	assert.Contains(t, classified.Message, ontURI)

	h.fetcher.panics = nil
	res, err := h.engine.Resolve(context.Background(), newRequest(t, format.Turtle, negotiate.PreferDownload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetch, res.Outcome)
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	_, err := NewEngine(Options{})
	assert.Error(t, err)
}
