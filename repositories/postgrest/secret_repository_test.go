package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/mcp-auth-gateway/models"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T, handler http.HandlerFunc) *SecretRepository {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewSecretRepository(Config{
		BaseURL:    server.URL,
		ServiceKey: "service-key",
		Timeout:    time.Second,
	}, zap.NewNop()).(*SecretRepository)
}

func TestSecretRepository_FindByName(t *testing.T) {
	ctx := context.Background()

	t.Run("sends auth headers and filters", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/rest/v1/secrets", r.URL.Path)
			assert.Equal(t, "service-key", r.Header.Get("apikey"))
			assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
			assert.Equal(t, "eq.API_KEY", r.URL.Query().Get("name"))
			assert.Equal(t, "eq.tenant-1", r.URL.Query().Get("creator_id"))

			_, _ = io.WriteString(w, `[{"id":"abc","name":"API_KEY","value":"ct","creator_id":"tenant-1","description":null,"created_at":"2024-05-01T10:00:00.123456+00:00","updated_at":"2024-05-01T10:00:00"}]`)
		})

		secret, err := repo.FindByName(ctx, "API_KEY", models.StringPtr("tenant-1"))
		require.NoError(t, err)
		require.NotNil(t, secret)
		assert.Equal(t, "abc", secret.ID)
		assert.Equal(t, "ct", secret.Value)
		require.NotNil(t, secret.CreatedAt)
		require.NotNil(t, secret.UpdatedAt)
		assert.Equal(t, 2024, secret.CreatedAt.Year())
	})

	t.Run("global scope uses is.null", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "is.null", r.URL.Query().Get("creator_id"))
			assert.Equal(t, "eq.api_token:tok", r.URL.Query().Get("name"))
			_, _ = io.WriteString(w, `[]`)
		})

		secret, err := repo.FindByName(ctx, "api_token:tok", nil)
		require.NoError(t, err)
		assert.Nil(t, secret)
	})

	t.Run("http error is surfaced, not treated as absent", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"message":"relation does not exist"}`)
		})

		secret, err := repo.FindByName(ctx, "API_KEY", nil)
		require.Error(t, err)
		assert.Nil(t, secret)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.NotContains(t, err.Error(), "relation does not exist")
	})

	t.Run("timeout is an error", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
			_, _ = io.WriteString(w, `[]`)
		})
		repo.httpClient.Timeout = 20 * time.Millisecond

		_, err := repo.FindByName(ctx, "API_KEY", nil)
		assert.Error(t, err)
	})
}

func TestSecretRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("all tenants", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			_, present := r.URL.Query()["creator_id"]
			assert.False(t, present)
			_, _ = io.WriteString(w, `[{"id":1,"name":"A","value":"c1"},{"id":2,"name":"B","value":"c2","creator_id":"t"}]`)
		})

		secrets, err := repo.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, secrets, 2)
		assert.Equal(t, "1", secrets[0].ID)
		assert.Equal(t, "t", models.StringValue(secrets[1].CreatorID))
	})

	t.Run("one tenant", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "eq.t", r.URL.Query().Get("creator_id"))
			_, _ = io.WriteString(w, `[]`)
		})

		secrets, err := repo.List(ctx, models.StringPtr("t"))
		require.NoError(t, err)
		assert.Empty(t, secrets)
	})
}

func TestSecretRepository_InsertAndUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("insert posts body and asks for representation", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "API_KEY", body["name"])
			assert.Equal(t, "ct", body["value"])
			assert.Nil(t, body["creator_id"])

			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[{"id":"new","name":"API_KEY","value":"ct"}]`)
		})

		stored, err := repo.Insert(ctx, &models.Secret{Name: "API_KEY", Value: "ct"})
		require.NoError(t, err)
		assert.Equal(t, "new", stored.ID)
	})

	t.Run("update patches by id", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "eq.id-1", r.URL.Query().Get("id"))

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ct2", body["value"])
			assert.Equal(t, "rotated", body["description"])
			assert.NotEmpty(t, body["updated_at"])

			_, _ = io.WriteString(w, `[{"id":"id-1","name":"API_KEY","value":"ct2","description":"rotated"}]`)
		})

		stored, err := repo.Update(ctx, "id-1", "ct2", models.StringPtr("rotated"))
		require.NoError(t, err)
		assert.Equal(t, "id-1", stored.ID)
		assert.Equal(t, "rotated", models.StringValue(stored.Description))
	})

	t.Run("update of a vanished row", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `[]`)
		})

		_, err := repo.Update(ctx, "gone", "v", nil)
		assert.Error(t, err)
	})
}

func TestSecretRepository_DeleteByName(t *testing.T) {
	ctx := context.Background()

	t.Run("empty 204 response is success", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "eq.api_token:tok", r.URL.Query().Get("name"))
			w.WriteHeader(http.StatusNoContent)
		})

		assert.NoError(t, repo.DeleteByName(ctx, "api_token:tok", nil))
	})

	t.Run("forbidden", func(t *testing.T) {
		repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		assert.Error(t, repo.DeleteByName(ctx, "x", nil))
	})
}

func TestSecretRepository_Ping(t *testing.T) {
	repo := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id", r.URL.Query().Get("select"))
		_, _ = io.WriteString(w, `[]`)
	})

	assert.NoError(t, repo.Ping(context.Background()))
}
