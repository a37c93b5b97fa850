package web

import (
	"database/sql"
	"encoding/json"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/strand/internal/brackets"
	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/ops"
	"github.com/hpungsan/strand/internal/run"
)

// maxToolBodyBytes bounds POST /tools bodies.
const maxToolBodyBytes = 4 << 20

var kindNames = []string{
	string(run.KindValidate),
	string(run.KindEncode),
	string(run.KindDecode),
	string(run.KindTally),
}

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /runs.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	workspace := q.Get("workspace")
	if workspace == "" {
		workspace = run.DefaultWorkspace
	}

	input := ops.ListInput{
		Workspace:      workspace,
		Kind:           q.Get("kind"),
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.List(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData:   h.renderer.page("Runs", "runs"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Workspace:  workspace,
		Kind:       input.Kind,
		Deleted:    input.IncludeDeleted,
		Kinds:      kindNames,
	})
}

// HandleDetail handles GET /runs/{id}.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	out, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{
		ID:             r.PathValue("id"),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
		IncludeReport:  true,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData:     h.renderer.page(out.Kind+" "+shortID(out.ID), "runs"),
		Run:          out,
		RenderedHTML: h.renderer.renderMarkdown(out.Report),
	})
}

// HandleDelete handles DELETE /runs/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("HX-Redirect", "/runs")
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/runs", http.StatusSeeOther)
}

// HandlePurge handles POST /runs/purge.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	input := ops.PurgeInput{Workspace: ptrString(r.FormValue("workspace"))}
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<div class="purge-result">` + template.HTMLEscapeString(result.Message) + `</div>`))
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	http.Redirect(w, r, "/runs?include_deleted=true", http.StatusSeeOther)
}

// HandleTools handles GET /tools.
func (h *Handlers) HandleTools(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if _, err := run.ParseKind(kind); err != nil {
		kind = string(run.KindValidate)
	}
	h.renderer.renderPage(w, r, "tools", h.toolsPage(kind, toolRequest{}))
}

// toolRequest is the body of POST /tools/{kind}, as a form or JSON.
type toolRequest struct {
	Text      string `json:"text"`
	Policy    string `json:"policy,omitempty"`
	Record    bool   `json:"record,omitempty"`
	Workspace string `json:"workspace,omitempty"`
}

// HandleRunTool handles POST /tools/{kind}.
func (h *Handlers) HandleRunTool(w http.ResponseWriter, r *http.Request) {
	jsonBody := isJSONBody(r)
	jsonOut := jsonBody || wantsJSON(r)

	kind, err := run.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest(err.Error()))
		return
	}

	req, err := readToolRequest(w, r, jsonBody)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	result, out, err := h.runTool(r, kind, req)
	if jsonOut {
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, out)
		return
	}

	status := http.StatusOK
	if result.Error != nil {
		status = result.Error.Status
	}
	data := h.toolsPage(string(kind), req)
	data.Result = result
	if isHTMX(r) {
		h.renderer.renderBlock(w, status, "tools", "tool-result", data)
		return
	}
	h.renderer.renderPageStatus(w, r, status, "tools", data)
}

// runTool dispatches to the sequence op for kind. Caller-facing failures are
// returned in ToolResult.Error as well as err.
func (h *Handlers) runTool(r *http.Request, kind run.Kind, req toolRequest) (*ToolResult, any, error) {
	ctx := r.Context()
	opts := ops.RecordOptions{Record: req.Record, Workspace: req.Workspace}
	res := &ToolResult{}

	var out any
	var err error
	switch kind {
	case run.KindValidate:
		res.Validate, err = ops.Validate(ctx, h.db, h.cfg, ops.ValidateInput{Text: req.Text, Policy: req.Policy, RecordOptions: opts})
		out = res.Validate
	case run.KindEncode:
		res.Encode, err = ops.Encode(ctx, h.db, h.cfg, ops.EncodeInput{Text: req.Text, RecordOptions: opts})
		out = res.Encode
	case run.KindDecode:
		res.Decode, err = ops.Decode(ctx, h.db, h.cfg, ops.DecodeInput{Encoded: req.Text, RecordOptions: opts})
		out = res.Decode
	default:
		res.Tally, err = ops.Tally(ctx, h.db, h.cfg, ops.TallyInput{Text: req.Text, RecordOptions: opts})
		out = res.Tally
	}

	if err != nil {
		sErr, ok := errors.As(err)
		if !ok || sErr.Code == errors.ErrInternal {
			h.renderer.lggr.Errorw("tool failed", "kind", kind, "error", err)
			sErr = errors.NewInternal(err)
			sErr.Message = "an internal error occurred"
		}
		return &ToolResult{Error: sErr}, nil, err
	}
	return res, out, nil
}

func (h *Handlers) toolsPage(kind string, req toolRequest) ToolsPageData {
	policy := req.Policy
	if policy == "" {
		policy = h.cfg.BracketPolicy
	}
	if policy == "" {
		policy = brackets.DefaultPolicy.String()
	}
	return ToolsPageData{
		PageData:  h.renderer.page("Tools", "tools"),
		Kind:      kind,
		Text:      req.Text,
		Policy:    policy,
		Workspace: req.Workspace,
		Record:    req.Record,
		Policies:  brackets.PolicyNames(),
	}
}

// readToolRequest decodes the request body as JSON or form data.
func readToolRequest(w http.ResponseWriter, r *http.Request, jsonBody bool) (toolRequest, error) {
	var req toolRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxToolBodyBytes)

	if jsonBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.NewInvalidRequest("invalid JSON body")
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, errors.NewInvalidRequest("invalid form data")
	}
	req.Text = r.PostFormValue("text")
	req.Policy = r.PostFormValue("policy")
	req.Workspace = r.PostFormValue("workspace")
	req.Record = isTrue(r.PostFormValue("record"))
	return req, nil
}

func isJSONBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	return isTrue(r.URL.Query().Get(name))
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "on":
		return true
	}
	return false
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// shortID truncates a run id for titles.
func shortID(id string) string {
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}
