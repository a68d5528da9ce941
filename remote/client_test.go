// ABOUTME: Tests for the HTTP and websocket remote store client
// ABOUTME: Covers document round-trips, auth headers, and change feed delivery
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/orgsync/models"
)

func TestClientGetAbsent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL})
	env, err := client.Get(context.Background(), "organizations/AMI/data/attendanceNames")
	require.NoError(t, err)
	assert.Nil(t, env, "404 reads as absent, not an error")
}

func TestClientGetDecodesEnvelope(t *testing.T) {
	want := models.Envelope{
		Data:      json.RawMessage(`["alice"]`),
		UpdatedBy: "someone",
		UpdatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/docs/"))
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL})
	env, err := client.Get(context.Background(), "organizations/AMI/data/attendanceNames")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.JSONEq(t, `["alice"]`, string(env.Data))
	assert.Equal(t, "someone", env.UpdatedBy)
}

func TestClientSetSendsMergeAndAuth(t *testing.T) {
	var gotMerge, gotAuth string
	var gotEnv models.Envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotMerge = r.URL.Query().Get("merge")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotEnv)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL, Token: "secret-token"})
	err := client.Set(context.Background(), "organizations/AMI/data/reportTitles",
		models.Envelope{Data: json.RawMessage(`["t"]`), UpdatedBy: "me"}, true)
	require.NoError(t, err)

	assert.Equal(t, "1", gotMerge)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "me", gotEnv.UpdatedBy)
}

func TestClientSetErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL})
	err := client.Set(context.Background(), "p", models.Envelope{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClientGetCollection(t *testing.T) {
	payload := CollectionPayload{
		Prefix: "organizations/AMI/signatures/",
		Docs: []Doc{
			{Path: "organizations/AMI/signatures/alice", Envelope: models.Envelope{Data: json.RawMessage(`{}`)}},
		},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/collections/"))
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL})
	docs, err := client.GetCollection(context.Background(), "organizations/AMI/signatures/")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "organizations/AMI/signatures/alice", docs[0].Path)
}

func TestClientPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/ping" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL})
	assert.NoError(t, client.Ping(context.Background()))

	server.Close()
	assert.Error(t, client.Ping(context.Background()), "unreachable server fails the ping")
}

// watchServer upgrades /v1/watch and hands the connection to fn.
func watchServer(t *testing.T, fn func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/watch" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		fn(conn)
	}))
}

func TestClientWatchDeliversDocFrames(t *testing.T) {
	path := "organizations/AMI/data/attendanceNames"
	server := watchServer(t, func(conn *websocket.Conn) {
		defer func() { _ = conn.Close() }()

		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, TypeSubscribe, msg.Type)
		assert.Equal(t, path, msg.Path)

		frame, err := NewMessage(TypeDoc, path, DocPayload{
			Path:     path,
			Envelope: models.Envelope{Data: json.RawMessage(`["pushed"]`), UpdatedBy: "other"},
		})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(frame))

		// Hold the connection open until the test finishes
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL})
	defer func() { _ = client.Close() }()

	got := make(chan models.Envelope, 1)
	sub, err := client.Watch(path, func(env models.Envelope) { got <- env })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	select {
	case env := <-got:
		assert.JSONEq(t, `["pushed"]`, string(env.Data))
		assert.Equal(t, "other", env.UpdatedBy)
	case <-time.After(2 * time.Second):
		t.Fatal("doc frame not delivered")
	}
}

func TestClientWatchErrorOnDisconnect(t *testing.T) {
	server := watchServer(t, func(conn *websocket.Conn) {
		var msg Message
		_ = conn.ReadJSON(&msg)
		// Give the client a moment to register its error callback
		time.Sleep(50 * time.Millisecond)
		_ = conn.Close()
	})
	defer server.Close()

	client := NewClient(ClientConfig{Server: server.URL})
	defer func() { _ = client.Close() }()

	sub, err := client.Watch("p", func(models.Envelope) {})
	require.NoError(t, err)

	errs := make(chan error, 1)
	sub.OnError(func(err error) { errs <- err })

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "change feed disconnected")
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect error not delivered")
	}
}
