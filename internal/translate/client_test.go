package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(Options{
		URL:             url,
		InitialInterval: time.Millisecond,
		MaxElapsed:      2 * time.Second,
	})
}

func TestTranslate_SendsLibreTranslateRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "The patient confirmed.", body["q"])
		assert.Equal(t, "en", body["source"])
		assert.Equal(t, "es", body["target"])
		assert.Equal(t, "text", body["format"])
		_, _ = w.Write([]byte(`{"translatedText":"El paciente confirmó."}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Translate(context.Background(), "The patient confirmed.")
	require.NoError(t, err)
	assert.Equal(t, "El paciente confirmó.", out)
}

func TestTranslate_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"translatedText":"hola"}`))
	}))
	defer srv.Close()

	out, err := newTestClient(srv.URL).Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hola", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestTranslate_ClientErrorIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"error":"Invalid request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Translate(context.Background(), "hello")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestTranslateOrOriginal_FallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).TranslateOrOriginal(context.Background(), "hello")
	assert.Equal(t, Result{Text: "hello", Original: "hello", Translated: false}, res)
}

func TestTranslate_NotConfigured(t *testing.T) {
	c := NewClient(Options{})
	assert.False(t, c.Enabled())
	_, err := c.Translate(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, c.TranslateOrOriginal(context.Background(), "hello").Translated)
}
