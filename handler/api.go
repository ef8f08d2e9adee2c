package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"widget-preview/internal/domain"
	"widget-preview/internal/usecase"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string            `json:"error"`
	Reason  string            `json:"reason"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type slugResponse struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type conversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type historyResponse struct {
	Entries []domain.ConversationEntry `json:"entries"`
}

type outcomeRequest struct {
	Outcome  string `json:"outcome"`
	Stage    string `json:"stage"`
	Selector string `json:"selector"`
	Attempts int    `json:"attempts"`
	Message  string `json:"message"`
}

type statusResponse struct {
	Backend          string   `json:"backend"`
	Mode             string   `json:"mode"`
	RemoteConfigured bool     `json:"remoteConfigured"`
	RemoteReachable  *bool    `json:"remoteReachable,omitempty"`
	RemoteError      string   `json:"remoteError,omitempty"`
	Missing          []string `json:"missing"`
}

var knownOutcomes = map[string]bool{"mounted": true, "fallback": true, "error": true}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ue, ok := usecase.AsError(err)
	if !ok {
		ue = &usecase.Error{Code: usecase.ErrorInternal, Reason: "unexpected_error", Err: err}
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "reason", ue.Reason, "err", err, "correlation_id", correlationID(r.Context()))
	} else {
		h.logger.Info("request rejected", "path", r.URL.Path, "reason", ue.Reason, "correlation_id", correlationID(r.Context()))
	}
	writeJSON(w, status, errorResponse{
		Error:   string(ue.Code),
		Reason:  ue.Reason,
		Message: ue.Message(),
		Fields:  ue.Fields,
	})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorForbidden:
		return http.StatusForbidden
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err}
	}
	return nil
}

func (h *Handler) deriveSlug(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	writeJSON(w, http.StatusOK, slugResponse{Name: name, Slug: usecase.DeriveSlug(name)})
}

func (h *Handler) compose(w http.ResponseWriter, r *http.Request) {
	var in usecase.ComposeInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.composer.Compose(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) seedExample(w http.ResponseWriter, r *http.Request) {
	out, err := h.composer.SeedExample(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	ov, err := h.manager.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.manager.Client(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	var patch domain.ClientPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.manager.UpdateClient(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// deleteClient requires ?confirm=true; the cascade removes every script of
// the client.
func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	report, err := h.manager.DeleteClient(r.Context(), mux.Vars(r)["id"], confirmed)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) clientScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.manager.ClientScripts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (h *Handler) listScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.manager.Scripts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (h *Handler) getScript(w http.ResponseWriter, r *http.Request) {
	sc, err := h.manager.Script(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) updateScript(w http.ResponseWriter, r *http.Request) {
	var patch domain.ScriptPatch
	if err := decodeJSON(r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	sc, err := h.manager.UpdateScript(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (h *Handler) deleteScript(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteScript(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) probeScript(w http.ResponseWriter, r *http.Request) {
	report, err := h.previewer.Probe(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.PreviewOutcome("probe", string(report.Outcome))
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) newConversation(w http.ResponseWriter, r *http.Request) {
	var in conversationRequest
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.previewer.NewConversation(r.Context(), mux.Vars(r)["id"], in.ConversationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) conversationHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.previewer.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

func (h *Handler) deleteConversation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.previewer.DeleteConversation(r.Context(), vars["id"], vars["entryId"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// previewOutcome records what the preview runtime observed. A widget that
// never mounted is logged, not treated as a failure.
func (h *Handler) previewOutcome(w http.ResponseWriter, r *http.Request) {
	var in outcomeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&in); err != nil {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body", Err: err})
		return
	}
	outcome := strings.ToLower(strings.TrimSpace(in.Outcome))
	if !knownOutcomes[outcome] {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_outcome"})
		return
	}
	attrs := []any{
		"script_id", mux.Vars(r)["id"],
		"outcome", outcome,
		"stage", in.Stage,
		"attempts", in.Attempts,
	}
	switch outcome {
	case "error":
		h.logger.Warn("widget preview failed", append(attrs, "message", in.Message)...)
	case "fallback":
		h.logger.Info("widget not detected, fallback shown", attrs...)
	default:
		h.logger.Info("widget mounted", attrs...)
	}
	if h.metrics != nil {
		h.metrics.PreviewOutcome("page", outcome)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st := h.storage.Status()
	resp := statusResponse{
		Backend:          st.Backend,
		Mode:             st.Mode,
		RemoteConfigured: st.RemoteConfigured,
		Missing:          h.missing,
	}
	if st.RemoteConfigured && r.URL.Query().Get("ping") == "true" {
		reachable := true
		if err := h.storage.Ping(r.Context()); err != nil {
			reachable = false
			resp.RemoteError = err.Error()
		}
		resp.RemoteReachable = &reachable
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recentDiagnostics(w http.ResponseWriter, r *http.Request) {
	if h.diagnostics == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.diagnostics.Entries(limit))
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		h.writeError(w, r, &usecase.Error{Code: usecase.ErrorNotFound, Reason: usecase.ReasonNotFound})
		return
	}
	h.renderError(w, r, &usecase.Error{Code: usecase.ErrorNotFound, Reason: usecase.ReasonNotFound})
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Error:   string(usecase.ErrorInvalidInput),
		Reason:  "method_not_allowed",
		Message: "Método não permitido.",
	})
}
