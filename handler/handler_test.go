package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"widget-preview/internal/diagnostics"
	"widget-preview/internal/domain"
	"widget-preview/internal/probe"
	"widget-preview/internal/slug"
	"widget-preview/internal/storage"
	"widget-preview/internal/subdomain"
	"widget-preview/internal/usecase"
	"widget-preview/internal/widget"
)

// ---------------------------------------------------------------------------
// stubs
// ---------------------------------------------------------------------------

type stubComposer struct {
	in  usecase.ComposeInput
	out usecase.ComposeOutput
	err error
}

func (s *stubComposer) Compose(_ context.Context, in usecase.ComposeInput) (usecase.ComposeOutput, error) {
	s.in = in
	return s.out, s.err
}

func (s *stubComposer) SeedExample(context.Context) (usecase.ComposeOutput, error) {
	return s.out, s.err
}

type stubManager struct {
	overview  usecase.Overview
	err       error
	confirmed bool
	deletedID string
	patch     domain.ClientPatch
}

func (s *stubManager) Overview(context.Context) (usecase.Overview, error) { return s.overview, s.err }
func (s *stubManager) Client(_ context.Context, id string) (domain.Client, error) {
	return domain.Client{ID: id}, s.err
}
func (s *stubManager) ClientScripts(context.Context, string) ([]usecase.ScriptSummary, error) {
	return []usecase.ScriptSummary{}, s.err
}
func (s *stubManager) Scripts(context.Context) ([]usecase.ScriptSummary, error) {
	return []usecase.ScriptSummary{}, s.err
}
func (s *stubManager) Script(_ context.Context, id string) (usecase.ScriptSummary, error) {
	return usecase.ScriptSummary{ChatScript: domain.ChatScript{ID: id}}, s.err
}
func (s *stubManager) UpdateClient(_ context.Context, id string, p domain.ClientPatch) (domain.Client, error) {
	s.patch = p
	return domain.Client{ID: id, Name: *p.Name}, s.err
}
func (s *stubManager) UpdateScript(_ context.Context, id string, _ domain.ScriptPatch) (usecase.ScriptSummary, error) {
	return usecase.ScriptSummary{ChatScript: domain.ChatScript{ID: id}}, s.err
}
func (s *stubManager) DeleteClient(_ context.Context, id string, confirmed bool) (usecase.DeleteReport, error) {
	s.deletedID, s.confirmed = id, confirmed
	if !confirmed {
		return usecase.DeleteReport{}, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: usecase.ReasonConfirmationRequired}
	}
	return usecase.DeleteReport{ClientID: id, ClientDeleted: true}, s.err
}
func (s *stubManager) DeleteScript(context.Context, string) error { return s.err }

type stubPreviewer struct {
	preview    usecase.Preview
	resolveErr error
	probe      bool
	entries    []domain.ConversationEntry
	current    string
	deleted    string
}

func (s *stubPreviewer) Resolve(_ context.Context, ref string) (usecase.Preview, error) {
	if s.resolveErr != nil {
		return usecase.Preview{}, s.resolveErr
	}
	return s.preview, nil
}
func (s *stubPreviewer) Policy() widget.Policy { return widget.DefaultPolicy() }
func (s *stubPreviewer) ProbeEnabled() bool    { return s.probe }
func (s *stubPreviewer) Probe(context.Context, string) (probe.Report, error) {
	return probe.Report{Outcome: probe.Fallback, Attempts: 6, RequestErrors: []string{}}, nil
}
func (s *stubPreviewer) NewConversation(_ context.Context, _ string, current string) (usecase.NewConversationOutput, error) {
	s.current = current
	return usecase.NewConversationOutput{ConversationID: "conv-new"}, nil
}
func (s *stubPreviewer) History(context.Context, string) ([]domain.ConversationEntry, error) {
	return s.entries, nil
}
func (s *stubPreviewer) DeleteConversation(_ context.Context, _ string, entryID string) error {
	s.deleted = entryID
	return nil
}

type stubStorage struct {
	status  storage.Status
	pingErr error
}

func (s stubStorage) Status() storage.Status     { return s.status }
func (s stubStorage) Ping(context.Context) error { return s.pingErr }

type fakeMetrics struct {
	outcomes []string
	requests int
}

func (f *fakeMetrics) ObserveRequest(string, string, int, time.Duration) { f.requests++ }
func (f *fakeMetrics) PreviewOutcome(source, outcome string) {
	f.outcomes = append(f.outcomes, source+":"+outcome)
}
func (f *fakeMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "widget_preview_up 1\n")
	})
}

type fixture struct {
	h         *Handler
	composer  *stubComposer
	manager   *stubManager
	previewer *stubPreviewer
	metrics   *fakeMetrics
	recorder  *diagnostics.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		composer: &stubComposer{},
		manager:  &stubManager{},
		previewer: &stubPreviewer{preview: usecase.Preview{
			Script:     domain.ChatScript{ID: "s1", ClientName: "Acme", ClientSlug: "acme", Script: `<script>boot()</script>`},
			Embed:      widget.Embed{Inline: "boot()"},
			ResolvedBy: usecase.ResolvedByID,
		}},
		metrics:  &fakeMetrics{},
		recorder: diagnostics.NewRecorder(10, nil),
	}
	h, err := NewHandler(Deps{
		Composer:    f.composer,
		Manager:     f.manager,
		Previewer:   f.previewer,
		Storage:     stubStorage{status: storage.Status{Backend: "local", Mode: storage.ModeLocal}},
		Subdomains:  subdomain.NewResolver(nil, nil),
		Diagnostics: f.recorder,
		Metrics:     f.metrics,
		Missing:     []string{"BASEROW_API_TOKEN"},
		Logger:      diagnostics.NewLogger(io.Discard, slog.LevelInfo, f.recorder),
	})
	require.NoError(t, err)
	f.h = h
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

// ---------------------------------------------------------------------------
// Lambda entry point
// ---------------------------------------------------------------------------

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(Deps{})
	require.ErrorContains(t, err, "composer must not be nil")
	_, err = NewHandler(Deps{Composer: &stubComposer{}})
	require.ErrorContains(t, err, "manager must not be nil")
	_, err = NewHandler(Deps{Composer: &stubComposer{}, Manager: &stubManager{}})
	require.ErrorContains(t, err, "previewer must not be nil")
	_, err = NewHandler(Deps{Composer: &stubComposer{}, Manager: &stubManager{}, Previewer: &stubPreviewer{}})
	require.ErrorContains(t, err, "storage status must not be nil")
	_, err = NewHandler(Deps{Composer: &stubComposer{}, Manager: &stubManager{}, Previewer: &stubPreviewer{}, Storage: stubStorage{}})
	require.ErrorContains(t, err, "subdomain resolver must not be nil")
}

func TestHandle_ComposeHappyPath(t *testing.T) {
	f := newFixture(t)
	f.composer.out = usecase.ComposeOutput{State: usecase.StateLinkGenerated, ScriptID: "s1", Slug: "acme-co", Link: "https://x/acme-co"}

	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/compose",
		`{"script":"<script>x()</script>","newClient":true,"name":"Acme Co","email":"a@acme.com"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "Acme Co", f.composer.in.Name)
	require.True(t, f.composer.in.NewClient)

	out := parseBody[usecase.ComposeOutput](t, resp.Body)
	require.Equal(t, "acme-co", out.Slug)
	require.Equal(t, usecase.StateLinkGenerated, out.State)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_InvalidBody(t *testing.T) {
	f := newFixture(t)
	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/compose", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_body", out.Reason)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: usecase.ReasonEmptyScript}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "not found", err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: usecase.ReasonClientNotFound}, status: http.StatusNotFound, code: string(usecase.ErrorNotFound)},
		{name: "forbidden", err: &usecase.Error{Code: usecase.ErrorForbidden, Reason: usecase.ReasonCrossOrigin}, status: http.StatusForbidden, code: string(usecase.ErrorForbidden)},
		{name: "conflict", err: &usecase.Error{Code: usecase.ErrorConflict, Reason: usecase.ReasonSlugTaken}, status: http.StatusConflict, code: string(usecase.ErrorConflict)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: usecase.ReasonProbeFailed}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: usecase.ReasonStoreError}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.composer.err = tc.err

			resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/compose", `{"script":"x"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.NotEmpty(t, out.Message)
		})
	}
}

func TestHandle_SlugTakenMessage(t *testing.T) {
	f := newFixture(t)
	f.composer.err = &usecase.Error{Code: usecase.ErrorConflict, Reason: usecase.ReasonSlugTaken}
	resp, err := f.h.Handle(context.Background(), makeEvent(http.MethodPost, "/api/compose", `{"script":"x"}`))
	require.NoError(t, err)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, usecase.ReasonSlugTaken, out.Reason)
	require.Contains(t, out.Message, "slug")
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	f := newFixture(t)
	event := makeEvent(http.MethodGet, "/api/status", "")
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_QueryAndBase64Body(t *testing.T) {
	f := newFixture(t)
	event := makeEvent(http.MethodGet, "/api/slug", "")
	event.QueryStringParameters = map[string]string{"name": "São Paulo Café"}
	resp, err := f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "sao-paulo-cafe", parseBody[slugResponse](t, resp.Body).Slug)

	event = makeEvent(http.MethodPost, "/api/compose", "eyJzY3JpcHQiOiJ4In0=")
	event.IsBase64Encoded = true
	resp, err = f.h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "x", f.composer.in.Script)
}

// ---------------------------------------------------------------------------
// pages
// ---------------------------------------------------------------------------

func TestRoot_SubdomainRedirect(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "acme.converseia.com"
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/acme", rec.Header().Get("Location"))
}

func TestRoot_ServesComposer(t *testing.T) {
	f := newFixture(t)
	for _, host := range []string{"converseia.com", "www.converseia.com", "example.org"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = host
		rec := httptest.NewRecorder()
		f.h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, host)
		require.Contains(t, rec.Body.String(), `id="composer"`)
	}
}

func TestStaticPages(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `id="clients"`)
	for _, want := range []string{`id="client-form"`, `name="company"`, `id="script-form"`, `name="isActive"`, "/scripts'", "'/api/scripts/'", "sc.previewLink"} {
		require.Contains(t, rec.Body.String(), want)
	}

	rec = f.do(t, http.MethodGet, "/setup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/setup/example")
}

func TestFixedRoutesAreReservedSlugs(t *testing.T) {
	f := newFixture(t)
	seen := 0
	err := f.h.routes().Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tmpl, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		first := strings.SplitN(strings.TrimPrefix(tmpl, "/"), "/", 2)[0]
		if first == "" || strings.HasPrefix(first, "{") {
			return nil
		}
		seen++
		require.True(t, slug.IsReserved(first), "route %s shadows client slug %q", tmpl, first)
		return nil
	})
	require.NoError(t, err)
	require.Positive(t, seen)
}

func TestSlugPage_RendersHost(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/acme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `src="/preview/s1/frame"`)
	require.Contains(t, body, widget.FrameSandbox)
	require.Contains(t, body, "Nova Conversa")
	require.NotContains(t, body, "boot()")
}

func TestPreviewFrame(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/preview/s1/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Equal(t, widget.FrameCSP, rec.Header().Get("Content-Security-Policy"))
	require.NotContains(t, rec.Header().Get("Content-Security-Policy"), "allow-same-origin")
	body := rec.Body.String()
	require.Contains(t, body, "__widgetPreviewConfig")
	require.Contains(t, body, "__widgetPreviewNet")
	require.Contains(t, body, "/api/previews/s1/outcome")
}

func TestPreviewErrors_RenderErrorView(t *testing.T) {
	cases := []struct {
		reason string
		code   usecase.ErrorCode
		status int
	}{
		{usecase.ReasonNotFound, usecase.ErrorNotFound, http.StatusNotFound},
		{usecase.ReasonEmptyStore, usecase.ErrorNotFound, http.StatusNotFound},
		{usecase.ReasonMalformedScript, usecase.ErrorInvalidInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			f := newFixture(t)
			f.previewer.resolveErr = &usecase.Error{Code: tc.code, Reason: tc.reason}
			for _, path := range []string{"/missing", "/preview/missing", "/preview/missing/frame"} {
				rec := f.do(t, http.MethodGet, path, "")
				require.Equal(t, tc.status, rec.Code, path)
				require.Contains(t, rec.Body.String(), `href="/"`)
				require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// manager API
// ---------------------------------------------------------------------------

func TestDeleteClient_ConfirmationFromQuery(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodDelete, "/api/clients/c1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, usecase.ReasonConfirmationRequired, parseBody[errorResponse](t, rec.Body.String()).Reason)

	rec = f.do(t, http.MethodDelete, "/api/clients/c1?confirm=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, f.manager.confirmed)
	require.Equal(t, "c1", f.manager.deletedID)
	require.True(t, parseBody[usecase.DeleteReport](t, rec.Body.String()).ClientDeleted)
}

func TestUpdateClient(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPatch, "/api/clients/c1", `{"name":"Novo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Novo", *f.manager.patch.Name)

	rec = f.do(t, http.MethodPatch, "/api/clients/c1", `{"slug":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManagerRoutes(t *testing.T) {
	f := newFixture(t)
	f.manager.overview = usecase.Overview{Clients: []usecase.ClientSummary{}, TotalScripts: 3}
	for _, path := range []string{"/api/clients", "/api/clients/c1", "/api/clients/c1/scripts", "/api/scripts", "/api/scripts/s1"} {
		rec := f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
	require.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/scripts/s1", "").Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/api/scripts/s1", `{"title":"T"}`).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/clients/c1", `{}`)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProbeRoute(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/scripts/s1/probe", "").Code)

	f.previewer.probe = true
	h, err := NewHandler(Deps{
		Composer:   f.composer,
		Manager:    f.manager,
		Previewer:  f.previewer,
		Storage:    stubStorage{},
		Subdomains: subdomain.NewResolver(nil, nil),
		Metrics:    f.metrics,
	})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scripts/s1/probe", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, probe.Fallback, parseBody[probe.Report](t, rec.Body.String()).Outcome)
	require.Contains(t, f.metrics.outcomes, "probe:fallback")
}

// ---------------------------------------------------------------------------
// preview API
// ---------------------------------------------------------------------------

func TestConversationRoutes(t *testing.T) {
	f := newFixture(t)
	f.previewer.entries = []domain.ConversationEntry{{ID: "e1", ScriptID: "s1", ConversationID: "old"}}

	rec := f.do(t, http.MethodPost, "/api/previews/s1/conversations", `{"conversationId":"old"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "old", f.previewer.current)
	require.Equal(t, "conv-new", parseBody[usecase.NewConversationOutput](t, rec.Body.String()).ConversationID)

	rec = f.do(t, http.MethodGet, "/api/previews/s1/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, parseBody[historyResponse](t, rec.Body.String()).Entries, 1)

	rec = f.do(t, http.MethodDelete, "/api/previews/s1/conversations/e1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "e1", f.previewer.deleted)
}

func TestSameOrigin_RejectsFrameAndForeignWrites(t *testing.T) {
	cases := []struct {
		name   string
		method string
		target string
		origin string
		status int
	}{
		{name: "frame deletes client", method: http.MethodDelete, target: "/api/clients/c1?confirm=true", origin: "null", status: http.StatusForbidden},
		{name: "frame composes", method: http.MethodPost, target: "/api/compose", origin: "null", status: http.StatusForbidden},
		{name: "foreign seeds", method: http.MethodPost, target: "/api/setup/example", origin: "https://evil.test", status: http.StatusForbidden},
		{name: "same origin composes", method: http.MethodPost, target: "/api/compose", origin: "http://example.com", status: http.StatusCreated},
		{name: "no origin composes", method: http.MethodPost, target: "/api/compose", status: http.StatusCreated},
		{name: "frame reads", method: http.MethodGet, target: "/api/status", origin: "null", status: http.StatusOK},
		{name: "frame reports outcome", method: http.MethodPost, target: "/api/previews/s1/outcome", origin: "null", status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			body := `{"script":"x"}`
			if strings.HasSuffix(tc.target, "/outcome") {
				body = `{"outcome":"mounted"}`
			}
			req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(body))
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()
			f.h.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusForbidden {
				require.Equal(t, usecase.ReasonCrossOrigin, parseBody[errorResponse](t, rec.Body.String()).Reason)
				require.Empty(t, f.manager.deletedID)
				require.Empty(t, f.composer.in.Script)
			}
		})
	}
}

func TestPreviewOutcome(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/previews/s1/outcome", `{"outcome":"fallback","stage":"fab","attempts":6}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"page:fallback"}, f.metrics.outcomes)

	rec = f.do(t, http.MethodPost, "/api/previews/s1/outcome", `{"outcome":"exploded"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------------------------------------------------------------------------
// status, diagnostics, metrics
// ---------------------------------------------------------------------------

func TestStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := parseBody[statusResponse](t, rec.Body.String())
	require.Equal(t, storage.ModeLocal, out.Mode)
	require.Equal(t, []string{"BASEROW_API_TOKEN"}, out.Missing)
	require.Nil(t, out.RemoteReachable)
}

func TestStatus_Ping(t *testing.T) {
	f := newFixture(t)
	h, err := NewHandler(Deps{
		Composer:   f.composer,
		Manager:    f.manager,
		Previewer:  f.previewer,
		Storage:    stubStorage{status: storage.Status{Backend: "baserow", RemoteConfigured: true, Mode: storage.ModeRemote}, pingErr: errors.New("401")},
		Subdomains: subdomain.NewResolver(nil, nil),
	})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status?ping=true", nil))

	out := parseBody[statusResponse](t, rec.Body.String())
	require.NotNil(t, out.RemoteReachable)
	require.False(t, *out.RemoteReachable)
	require.Equal(t, "401", out.RemoteError)
	require.Empty(t, out.Missing)
}

func TestDiagnosticsAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.previewer.resolveErr = errors.New("disk gone")
	f.do(t, http.MethodGet, "/preview/s1", "")

	rec := f.do(t, http.MethodGet, "/api/diagnostics?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := parseBody[[]diagnostics.Entry](t, rec.Body.String())
	require.NotEmpty(t, entries)
	require.Equal(t, "page failed", entries[0].Message)

	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "widget_preview_up")
	require.Positive(t, f.metrics.requests)
}

func TestUnknownAPIRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/nope/deeper", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, string(usecase.ErrorNotFound), parseBody[errorResponse](t, rec.Body.String()).Error)
	require.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}
