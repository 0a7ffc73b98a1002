package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamClassification(t *testing.T) {
	assert.Nil(t, Upstream("chat", nil))

	err := Upstream("chat", errors.New("quota exceeded"))
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, "chat: quota exceeded", err.Error())

	// 已分类的错误保持原样
	notFound := fmt.Errorf("video x: %w", ErrNotFound)
	assert.Same(t, notFound, Upstream("youtube", notFound))
	bad := InvalidInput("bad url")
	assert.Same(t, bad, Upstream("youtube", bad))

	once := Upstream("memory", errors.New("boom"))
	assert.Same(t, once, Upstream("context store", once))

	timeout := Upstream("chat", context.DeadlineExceeded)
	assert.ErrorIs(t, timeout, ErrUpstreamUnavailable)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
	assert.Contains(t, timeout.Error(), "timed out")
}

func TestNotConfiguredIsUpstream(t *testing.T) {
	err := fmt.Errorf("chat: OPENAI_API_KEY: %w", ErrNotConfigured)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, http.StatusInternalServerError, StatusFor(err))
}

func TestStatusFor(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"invalid input": {InvalidInput("missing"), http.StatusBadRequest},
		"no context":    {ErrNoActiveContext, http.StatusBadRequest},
		"not found":     {fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		"mismatch":      {fmt.Errorf("%w: a vs b", ErrContextMismatch), http.StatusConflict},
		"upstream":      {Upstream("chat", errors.New("down")), http.StatusInternalServerError},
		"unclassified":  {errors.New("weird"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}

func TestWriteFailure(t *testing.T) {
	w := httptest.NewRecorder()
	WriteFailure(w, "Failed to process video", Upstream("youtube", errors.New("quota")))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Failed to process video", body.Error)
	assert.Equal(t, "youtube: quota", body.Details)

	w = httptest.NewRecorder()
	WriteFailure(w, "Failed to process message", ErrNoActiveContext)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = ErrorResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, ErrNoActiveContext.Error(), body.Error)
	assert.Empty(t, body.Details)
}
