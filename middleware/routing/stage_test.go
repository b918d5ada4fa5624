package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edge-gateway/middleware/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_ForwardsToResolvedTarget(t *testing.T) {
	st := NewStage(testTable(t), nil)

	r := httptest.NewRequest(http.MethodGet, "http://gw/api/auth/login?x=1", nil)
	rc := pipeline.NewRequestContext(r, "req-1")

	out, err := st.Handle(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindForward, out.Kind)
	assert.Equal(t, "auth", out.Target.RouteID)
	assert.Equal(t, "http://auth:8082/auth/login?x=1", out.Target.URL.String())
	assert.Equal(t, "auth", rc.Annotation(pipeline.AnnotationRoute))
}

func TestStage_NotFoundIsFallbackEnvelope(t *testing.T) {
	st := NewStage(testTable(t), nil)
	fixed := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	st.now = func() time.Time { return fixed }

	rc := pipeline.NewRequestContext(httptest.NewRequest(http.MethodGet, "http://gw/nope", nil), "req-1")
	out, err := st.Handle(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, pipeline.KindReject, out.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, out.Status)
	assert.Equal(t, pipeline.FallbackBody{
		Timestamp: "2026-10-17T09:30:00Z",
		Message:   pipeline.FallbackMessage,
	}, out.Body)
	assert.Empty(t, rc.Annotation(pipeline.AnnotationRoute))
}
