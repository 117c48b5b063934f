package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersIncrement(t *testing.T) {
	before := testutil.ToFloat64(autoResumesTotal)
	RecordAutoResume()
	if got := testutil.ToFloat64(autoResumesTotal); got != before+1 {
		t.Fatalf("auto_resumes_total = %v, want %v", got, before+1)
	}

	RecordRequest("APPROVE", "completed")
	if got := testutil.ToFloat64(requestsTotal.WithLabelValues("APPROVE", "completed")); got < 1 {
		t.Fatalf("requests_total = %v", got)
	}

	RecordNotification(errors.New("down"))
	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("error")); got < 1 {
		t.Fatalf("approval_notifications_total{error} = %v", got)
	}

	RecordAdvance("paused", 10*time.Millisecond)
	if got := testutil.ToFloat64(advancesTotal.WithLabelValues("paused")); got < 1 {
		t.Fatalf("driver_advances_total = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordClassification("send_retention_email", "SENSITIVE")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "retention_actions_classified_total") {
		t.Fatal("classification counter missing from exposition")
	}
}
