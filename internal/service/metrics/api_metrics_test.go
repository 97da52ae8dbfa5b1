package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(APIErrors.WithLabelValues("enrich", "invalid_input"))
	Observe("enrich", time.Now().Add(-10*time.Millisecond), "invalid_input")
	Observe("enrich", time.Now(), "")

	assert.Equal(t, before+1, testutil.ToFloat64(APIErrors.WithLabelValues("enrich", "invalid_input")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(APILatency), 1)
}
