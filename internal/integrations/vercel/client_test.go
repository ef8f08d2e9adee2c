package vercel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }
func (s staticTokens) Configured() bool                      { return s != "" }

func mustClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)
	c, err := NewClient(staticTokens("vt"), "prj_1", "converseia.com", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "p", "d.com")
	require.ErrorContains(t, err, "must not be nil")
	_, err = NewClient(staticTokens("t"), " ", "d.com")
	require.ErrorContains(t, err, "project id")
	_, err = NewClient(staticTokens("t"), "p", ".")
	require.ErrorContains(t, err, "root domain")
}

func TestAddDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v9/projects/prj_1/domains", r.URL.Path)
		require.Equal(t, "team_9", r.URL.Query().Get("teamId"))
		require.Equal(t, "Bearer vt", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.JSONEq(t, `{"name":"acme-co.converseia.com"}`, string(body))
		_, _ = w.Write([]byte(`{"name":"acme-co.converseia.com"}`))
	}))
	defer srv.Close()

	domain, err := mustClient(t, srv, WithTeamID("team_9")).AddDomain(context.Background(), "acme-co")
	require.NoError(t, err)
	require.Equal(t, "acme-co.converseia.com", domain)
}

func TestAddDomain_AlreadyInUseIsSuccess(t *testing.T) {
	for _, code := range []string{"domain_already_in_use", "domain_taken"} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"in use"}}`))
		}))
		domain, err := mustClient(t, srv).AddDomain(context.Background(), "acme-co")
		srv.Close()
		require.NoError(t, err, code)
		require.Equal(t, "acme-co.converseia.com", domain)
	}
}

func TestAddDomain_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"forbidden","message":"Not authorized"}}`))
	}))
	defer srv.Close()

	_, err := mustClient(t, srv).AddDomain(context.Background(), "acme-co")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusForbidden, apiErr.HTTPStatusCode())
	require.Equal(t, "forbidden", apiErr.Code)
}

func TestRemoveDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/v9/projects/prj_1/domains/acme-co.converseia.com", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	require.NoError(t, mustClient(t, srv).RemoveDomain(context.Background(), "acme-co"))
}

func TestListDomains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"domains":[{"name":"a.converseia.com"},{"name":"b.converseia.com"}]}`))
	}))
	defer srv.Close()
	names, err := mustClient(t, srv).ListDomains(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a.converseia.com", "b.converseia.com"}, names)
}
