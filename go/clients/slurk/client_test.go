package slurk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcdev12/dito/go/clients"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return NewClient(srv.URL+"/api/v2", "secret")
}

func TestUserTask(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/api/v2/user/4/task":
			_, _ = io.WriteString(w, `{"id": 2, "name": "dito"}`)
		case "/api/v2/user/5/task":
			_, _ = io.WriteString(w, `null`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	task, err := c.UserTask(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 2, task.ID)

	task, err = c.UserTask(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, task)

	_, err = c.UserTask(ctx, 6)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserTaskServerError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "no")
	})

	_, err := c.UserTask(context.Background(), 1)
	require.Error(t, err)

	var status *clients.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusForbidden, status.Code)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFreezeRoom(t *testing.T) {
	var got map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v2/room/room 1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.FreezeRoom(context.Background(), "room 1"))
	assert.Equal(t, map[string]any{"read_only": true}, got)
}

func TestUsersAndRename(t *testing.T) {
	var renamed map[string]string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v2/users":
			_, _ = io.WriteString(w, `[{"id": 1, "name": "Ada"}, {"id": 2, "name": "Bea"}]`)
		case r.Method == http.MethodPut && r.URL.Path == "/api/v2/user/2":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&renamed))
			_, _ = io.WriteString(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	users, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []User{{ID: 1, Name: "Ada"}, {ID: 2, Name: "Bea"}}, users)

	require.NoError(t, c.RenameUser(ctx, 2, "Cleo"))
	assert.Equal(t, map[string]string{"name": "Cleo"}, renamed)
}
