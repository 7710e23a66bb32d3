package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapServiceErrorToHTTP(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", services.ErrTournamentNotFound), http.StatusNotFound},
		{services.ErrMatchNotFound, http.StatusNotFound},
		{services.ErrTournamentFull, http.StatusConflict},
		{fmt.Errorf("wrap: %w", brackets.ErrResultConflict), http.StatusConflict},
		{brackets.ErrStaleResult, http.StatusConflict},
		{brackets.ErrInvalidResult, http.StatusBadRequest},
		{services.ErrTournamentStartTimeInPast, http.StatusBadRequest},
		{services.ErrGuestsNotAllowed, http.StatusForbidden},
		{brackets.ErrPersistenceUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			mapServiceErrorToHTTP(rec, req, tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	wildcard := originChecker([]string{"*"})
	assert.True(t, wildcard(req("https://evil.example")))

	open := originChecker(nil)
	assert.True(t, open(req("https://evil.example")))

	strict := originChecker([]string{"https://lobby.example", " https://admin.example "})
	assert.True(t, strict(req("https://lobby.example")))
	assert.True(t, strict(req("https://admin.example")))
	assert.True(t, strict(req("")), "non-browser clients send no origin")
	assert.False(t, strict(req("https://evil.example")))
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&offset=-1&bad=x", nil)

	v, err := queryInt(r, "limit", 20, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	v, err = queryInt(r, "missing", 20, 1)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	_, err = queryInt(r, "offset", 0, 0)
	assert.Error(t, err)
	_, err = queryInt(r, "bad", 0, 0)
	assert.Error(t, err)
}
