package cdn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/inkpress/config"
)

func TestPurger_Purge(t *testing.T) {
	var gotAuth string
	var gotBody map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPurger(config.CDNConfig{PurgeURL: srv.URL, APIToken: "tok"}, "https://blog.example.com/")
	err := p.Purge(context.Background(), "/", "/posts/hello", "/feed.xml")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, []string{
		"https://blog.example.com/",
		"https://blog.example.com/posts/hello",
		"https://blog.example.com/feed.xml",
	}, gotBody["files"])
}

func TestPurger_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer srv.Close()

	p := NewPurger(config.CDNConfig{PurgeURL: srv.URL}, "https://blog.example.com")
	err := p.Purge(context.Background(), "/")
	assert.ErrorIs(t, err, ErrUnexpectedStatusCode)
	assert.Contains(t, err.Error(), "denied")
}

func TestPurger_Disabled(t *testing.T) {
	p := NewPurger(config.CDNConfig{}, "https://blog.example.com")
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Purge(context.Background(), "/"))
}
