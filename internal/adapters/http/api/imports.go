package api

import (
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/vitals/internal/app"
)

// ImportsHandler handles the staged import lifecycle.
type ImportsHandler struct {
	deps     ImportDependencies
	maxBytes int64
}

// NewImportsHandler creates a new imports handler. Bodies larger than
// maxBytes are refused with 413.
func NewImportsHandler(deps ImportDependencies, maxBytes int64) *ImportsHandler {
	return &ImportsHandler{deps: deps, maxBytes: maxBytes}
}

// HandleStage handles POST /imports?format=&source=&types=&commit=.
// The body is the raw export. With commit=true the import is applied
// immediately and the commit result returned.
func (h *ImportsHandler) HandleStage(w http.ResponseWriter, r *http.Request) {
	const op = "api.stage_import"
	q := r.URL.Query()
	req := service.StageRequest{
		SourceID: q.Get("source"),
		Format:   q.Get("format"),
		Types:    splitList(q.Get("types")),
	}
	commit := false
	if v := q.Get("commit"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		commit = b
	}

	body := http.MaxBytesReader(w, r.Body, h.maxBytes)
	defer body.Close()

	if commit {
		res, err := h.deps.Import(r.Context(), req, body)
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	rep, err := h.deps.Stage(r.Context(), req, body)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	w.Header().Set("Location", "/imports/"+rep.ID)
	writeJSON(w, http.StatusCreated, rep)
}

// HandleList handles GET /imports.
func (h *ImportsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.PendingImports(r.Context()))
}

// HandleGet handles GET /imports/{id}.
func (h *ImportsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_import"
	rep, err := h.deps.Pending(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleCommit handles POST /imports/{id}/commit.
func (h *ImportsHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	const op = "api.commit_import"
	res, err := h.deps.Commit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDiscard handles DELETE /imports/{id}.
func (h *ImportsHandler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	const op = "api.discard_import"
	if err := h.deps.Discard(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// splitList parses a comma separated query value.
func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
