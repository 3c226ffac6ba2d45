package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", "test-token")
}

func writeEnvelope(w http.ResponseWriter, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

func TestCreateSession_Success(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathSessionCreate, r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body CreateSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "A1", body.AvatarID)
		assert.Equal(t, 600, body.Duration)

		writeEnvelope(w, CodeSuccess, "ok", map[string]any{
			"_id": "s1",
			"credentials": map[string]any{
				"agora_uid":     42,
				"agora_app_id":  "app1",
				"agora_channel": "ch1",
				"agora_token":   "tok1",
			},
		})
	})

	session, err := client.CreateSession(context.Background(), "A1", 600)
	require.NoError(t, err)

	assert.Equal(t, "s1", session.ID)
	assert.Equal(t, "A1", session.AvatarID)
	creds := session.ConnectionCredentials()
	assert.Equal(t, uint32(42), creds.UID)
	assert.Equal(t, "app1", creds.AppID)
	assert.Equal(t, "ch1", creds.Channel)
	assert.Equal(t, "tok1", creds.Token)
}

func TestCreateSession_DeprecatedStreamURLs(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, CodeSuccess, "ok", map[string]any{
			"_id": "s2",
			"stream_urls": map[string]any{
				"agora_uid":     7,
				"agora_app_id":  "legacy-app",
				"agora_channel": "legacy-ch",
				"agora_token":   "legacy-tok",
			},
		})
	})

	session, err := client.CreateSession(context.Background(), "A1", 60)
	require.NoError(t, err)
	assert.Equal(t, "legacy-ch", session.ConnectionCredentials().Channel)
}

func TestCreateSession_APIError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 1101, "avatar is busy", nil)
	})

	_, err := client.CreateSession(context.Background(), "A1", 60)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T", err)
	assert.Equal(t, 1101, apiErr.Code)
	assert.Equal(t, "avatar is busy", apiErr.Error())
}

func TestDo_HTTPErrorWithoutEnvelope(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("unauthorized"))
	})

	err := client.CloseSession(context.Background(), "s1")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestCloseSession_Success(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathSessionClose, r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1", body["id"])

		writeEnvelope(w, CodeSuccess, "ok", nil)
	})

	require.NoError(t, client.CloseSession(context.Background(), "s1"))
}

func TestListCatalog(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case pathLanguageList:
			writeEnvelope(w, CodeSuccess, "ok", map[string]any{
				"lang_list": []map[string]string{{"lang_code": "en", "lang_name": "English"}},
			})
		case pathVoiceList:
			writeEnvelope(w, CodeSuccess, "ok", []map[string]string{{"voice_id": "v1", "name": "Voice One"}})
		case pathAvatarList:
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			assert.Equal(t, "100", r.URL.Query().Get("size"))
			writeEnvelope(w, CodeSuccess, "ok", map[string]any{
				"result": []map[string]any{{"avatar_id": "A1", "name": "Olivia", "available": true}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	langs, err := client.ListLanguages(ctx)
	require.NoError(t, err)
	require.Len(t, langs, 1)
	assert.Equal(t, "en", langs[0].Code)

	voices, err := client.ListVoices(ctx)
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "v1", voices[0].VoiceID)

	avatars, err := client.ListAvatars(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, avatars, 1)
	assert.True(t, avatars[0].Available)
}
