package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorsAreNoops(t *testing.T) {
	var c *Collectors
	c.StreamOpened()
	c.SampleStored()
	c.ChatMessage("broadcast")
	c.StatusUpdateApplied()
}

func TestCountersAndHandler(t *testing.T) {
	c := New()
	c.StreamOpened()
	c.StreamOpened()
	c.StreamClosed()
	c.SampleStored()
	c.ChatMessage("dropped")
	c.ChatMessage("broadcast")
	c.ChatMessage("broadcast")

	if v := testutil.ToFloat64(c.StreamsActive); v != 1 {
		t.Fatalf("streams active = %v", v)
	}
	if v := testutil.ToFloat64(c.ChatMessages.WithLabelValues("broadcast")); v != 2 {
		t.Fatalf("broadcast messages = %v", v)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `starlaunch_chat_messages_total{result="dropped"} 1`) {
		t.Fatalf("exposition missing counter:\n%s", body)
	}
}
