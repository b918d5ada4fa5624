package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStage struct {
	name      string
	protected bool
	out       Outcome
	err       error
	panicWith any
	calls     int
}

func (s *fakeStage) Name() string    { return s.name }
func (s *fakeStage) Protected() bool { return s.protected }

func (s *fakeStage) Handle(context.Context, *RequestContext) (Outcome, error) {
	s.calls++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.out, s.err
}

type fakeUpstream struct {
	calls int
	err   error
	write func(w http.ResponseWriter)
}

func (u *fakeUpstream) Forward(w http.ResponseWriter, _ *http.Request, _ *RequestContext, _ Target) error {
	u.calls++
	if u.write != nil {
		u.write(w)
	}
	return u.err
}

type entries struct {
	mu  sync.Mutex
	got []Entry
}

func (e *entries) Observe(en Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, en)
}

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestPipeline(up Upstream, obs Observer, stages ...Stage) *Pipeline {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(up, stages,
		WithPublicPaths("/api/auth"),
		WithObservers(obs),
		WithLogger(log),
		WithIDFunc(func() string { return "req-1" }),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func serve(p *Pipeline, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://gw"+path, nil))
	return w
}

func forwardTo() Outcome { return Forward(Target{RouteID: "r"}) }

func TestPipeline_ShortCircuitsOnReject(t *testing.T) {
	obs := &entries{}
	auth := &fakeStage{name: "auth", protected: true, out: Reject(http.StatusUnauthorized, ErrorBody{Error: "missing token"})}
	limit := &fakeStage{name: "ratelimit", out: Continue()}
	route := &fakeStage{name: "routing", out: forwardTo()}
	up := &fakeUpstream{}

	w := serve(newTestPipeline(up, obs, auth, limit, route), "/api/orders")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"missing token"}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req-1", w.Header().Get(HeaderRequestID))
	assert.Equal(t, 1, auth.calls)
	assert.Zero(t, limit.calls)
	assert.Zero(t, route.calls)
	assert.Zero(t, up.calls)

	require.Len(t, obs.got, 1)
	assert.Equal(t, http.StatusUnauthorized, obs.got[0].Status)
	assert.Equal(t, "req-1", obs.got[0].RequestID)
}

func TestPipeline_PublicPathSkipsProtectedStages(t *testing.T) {
	obs := &entries{}
	auth := &fakeStage{name: "auth", protected: true, out: Reject(http.StatusUnauthorized, nil)}
	limit := &fakeStage{name: "ratelimit", out: Continue()}
	route := &fakeStage{name: "routing", out: forwardTo()}
	up := &fakeUpstream{write: func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) }}

	p := newTestPipeline(up, obs, auth, limit, route)

	w := serve(p, "/api/auth/login")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, auth.calls)
	assert.Equal(t, 1, limit.calls)
	assert.Equal(t, 1, up.calls)

	// fronteira de segmento: /api/authz não é público
	w = serve(p, "/api/authz")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, auth.calls)
	assert.Len(t, obs.got, 2)
}

func TestPipeline_StageErrorBecomesFallback(t *testing.T) {
	obs := &entries{}
	broken := &fakeStage{name: "ratelimit", err: errors.New("boom")}

	w := serve(newTestPipeline(&fakeUpstream{}, obs, broken), "/x")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body FallbackBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, FallbackMessage, body.Message)
	assert.Equal(t, "2026-10-17T12:00:00Z", body.Timestamp)

	require.Len(t, obs.got, 1)
	assert.ErrorContains(t, obs.got[0].Err, "boom")
}

func TestPipeline_PanicBecomesFallbackAndIsObservedOnce(t *testing.T) {
	obs := &entries{}
	st := &fakeStage{name: "auth", panicWith: "nil map"}

	w := serve(newTestPipeline(&fakeUpstream{}, obs, st), "/x")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Len(t, obs.got, 1)
	assert.Equal(t, http.StatusServiceUnavailable, obs.got[0].Status)
	assert.ErrorContains(t, obs.got[0].Err, "nil map")
}

func TestPipeline_AbortHandlerPanicIsRepanicked(t *testing.T) {
	obs := &entries{}
	st := &fakeStage{name: "auth", panicWith: http.ErrAbortHandler}
	p := newTestPipeline(&fakeUpstream{}, obs, st)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() { serve(p, "/x") })
	assert.Len(t, obs.got, 1)
}

func TestPipeline_NoDecisionIsFallback(t *testing.T) {
	obs := &entries{}
	w := serve(newTestPipeline(&fakeUpstream{}, obs, &fakeStage{name: "noop", out: Continue()}), "/x")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Len(t, obs.got, 1)
}

func TestPipeline_UpstreamErrorStatus(t *testing.T) {
	obs := &entries{}
	up := &fakeUpstream{err: &UpstreamError{Status: http.StatusGatewayTimeout, Err: errors.New("deadline")}}
	route := &fakeStage{name: "routing", out: forwardTo()}

	w := serve(newTestPipeline(up, obs, route), "/x")

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	var body FallbackBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, FallbackMessage, body.Message)
	require.Len(t, obs.got, 1)
	assert.Equal(t, http.StatusGatewayTimeout, obs.got[0].Status)
}

func TestPipeline_UpstreamErrorAfterHeadersKeepsResponse(t *testing.T) {
	obs := &entries{}
	up := &fakeUpstream{
		err:   errors.New("body copy failed"),
		write: func(w http.ResponseWriter) { w.WriteHeader(http.StatusOK) },
	}
	w := serve(newTestPipeline(up, obs, &fakeStage{name: "routing", out: forwardTo()}), "/x")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	require.Len(t, obs.got, 1)
	assert.Error(t, obs.got[0].Err)
}

func TestPipeline_ClientCancelIsRecordedAs499(t *testing.T) {
	obs := &entries{}
	ctx, cancel := context.WithCancel(context.Background())
	up := &fakeUpstream{err: context.Canceled}
	route := &fakeStage{name: "routing", out: forwardTo()}
	p := newTestPipeline(up, obs, route)

	cancel()
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://gw/x", nil).WithContext(ctx))

	assert.Empty(t, w.Body.String())
	require.Len(t, obs.got, 1)
	assert.Equal(t, StatusClientClosedRequest, obs.got[0].Status)
}

func TestPipeline_ResponseHeadersMergeIntoReject(t *testing.T) {
	setter := &headerStage{}
	reject := &fakeStage{name: "limit", out: Reject(http.StatusTooManyRequests, nil).WithHeader("Retry-After", "60")}

	w := serve(newTestPipeline(&fakeUpstream{}, &entries{}, setter, reject), "/x")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "yes", w.Header().Get("X-Seen"))
}

func TestPipeline_ObserverPanicIsContained(t *testing.T) {
	bad := ObserverFunc(func(Entry) { panic("observer") })
	good := &entries{}
	log := logrus.New()
	log.SetOutput(io.Discard)
	p := New(&fakeUpstream{}, []Stage{&fakeStage{name: "x", out: Reject(http.StatusTeapot, nil)}},
		WithObservers(bad, good), WithLogger(log))

	w := serve(p, "/x")
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Len(t, good.got, 1)
}

type headerStage struct{}

func (headerStage) Name() string { return "header" }

func (headerStage) Handle(_ context.Context, rc *RequestContext) (Outcome, error) {
	rc.ResponseHeader().Set("X-Seen", "yes")
	return Continue(), nil
}

func TestMatchPrefix(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"/api/auth", "/api/auth", true},
		{"/api/auth/login", "/api/auth", true},
		{"/api/auth/login", "/api/auth/", true},
		{"/api/authz", "/api/auth", false},
		{"/api", "/api/auth", false},
		{"/anything", "/", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MatchPrefix(tc.path, tc.prefix), "%s ~ %s", tc.path, tc.prefix)
	}
}

func TestPipeline_DurationUsesPipelineClock(t *testing.T) {
	obs := &entries{}
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return fixedNow
		}
		return fixedNow.Add(250 * time.Millisecond)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	p := New(&fakeUpstream{}, []Stage{&fakeStage{name: "x", out: Reject(http.StatusTeapot, nil)}},
		WithObservers(obs), WithLogger(log), WithClock(clock))

	serve(p, "/x")

	require.Len(t, obs.got, 1)
	assert.Equal(t, 250*time.Millisecond, obs.got[0].Duration)
}

func TestPipeline_DotSegmentsCannotReachPublicPrefix(t *testing.T) {
	obs := &entries{}
	auth := &fakeStage{name: "auth", protected: true, out: Reject(http.StatusUnauthorized, nil)}
	route := &fakeStage{name: "routing", out: forwardTo()}
	up := &fakeUpstream{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "http://gw/x", nil)
	r.URL.Path = "/api/auth/../orders/x"
	newTestPipeline(up, obs, auth, route).ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, auth.calls)
	assert.Zero(t, up.calls)
	require.Len(t, obs.got, 1)
	assert.Equal(t, "/api/orders/x", obs.got[0].Path)
}
