package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"github.com/weiawesome/chatter/internal/ident"
)

func newHTTPTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := NewHTTPHandler(ident.RoomCodes())
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestIndexRedirectsToFreshRoom(t *testing.T) {
	srv := newHTTPTestServer(t)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	room := loc.Query().Get("room")
	ok, _ := ident.RoomCodes().Validate(room)
	require.True(t, ok, "redirect target carries a valid room code, got %q", room)
}

func TestIndexServesRoomPage(t *testing.T) {
	srv := newHTTPTestServer(t)

	resp, err := http.Get(srv.URL + "/?room=ABCD12")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestIndexRejectsInvalidRoom(t *testing.T) {
	srv := newHTTPTestServer(t)

	resp, err := http.Get(srv.URL + "/?room=not-a-room-code")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := newHTTPTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}
