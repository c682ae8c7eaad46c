package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	before := testutil.ToFloat64(Notifications.WithLabelValues("application", OutcomeFailed))
	Notifications.WithLabelValues("application", OutcomeFailed).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Notifications.WithLabelValues("application", OutcomeFailed)))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_notifications_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
