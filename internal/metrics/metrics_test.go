package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/liliang-cn/doclens/internal/domain"
	"github.com/liliang-cn/doclens/internal/stream"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObservesDecoder(t *testing.T) {
	m := New()
	d := stream.NewDecoder(stream.WithObserver(m))
	d.Write([]byte("{\"data\":\"a\"}\nbad\n{\"data\":[]}\n{\"data\":\"tail"))
	d.Close()

	if got := testutil.ToFloat64(m.frames.WithLabelValues(domain.EventTextDelta.String())); got != 1 {
		t.Errorf("expected 1 text frame, got %v", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues(domain.EventCitationSet.String())); got != 1 {
		t.Errorf("expected 1 citation frame, got %v", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues("dropped")); got != 1 {
		t.Errorf("expected 1 dropped frame, got %v", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues("truncated")); got != 1 {
		t.Errorf("expected 1 truncated frame, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.UploadFinished(domain.UploadStatusAccepted)
	m.QueryFinished("complete")
	m.TranscriptReceived(true)
	m.AudioDropped()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	for _, want := range []string{
		`doclens_uploads_total{status="accepted"} 1`,
		`doclens_queries_total{result="complete"} 1`,
		`doclens_transcript_fragments_total{final="true"} 1`,
		`doclens_audio_fragments_dropped_total 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestMetrics_RegistryGathersListeners(t *testing.T) {
	m := New()
	m.ListenerOpened()
	m.ListenerOpened()
	m.ListenerClosed()

	if got := testutil.ToFloat64(m.activeListeners); got != 1 {
		t.Errorf("expected 1 active listener, got %v", got)
	}
	n, err := testutil.GatherAndCount(m.Registry(), "doclens_active_listen_sessions", "doclens_queries_total")
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only the listener gauge gathered, got %d series", n)
	}
}
