package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFireDisabledWhenURLEmpty(t *testing.T) {
	d := New("")
	d.Fire(Event{DeltaID: 1})
}

func TestFirePostsEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(srv.URL)
	d.Fire(Event{DeltaID: 42, Message: "hello"})

	select {
	case ev := <-received:
		assert.Equal(t, int64(42), ev.DeltaID)
		assert.Equal(t, "hello", ev.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not received")
	}
}
