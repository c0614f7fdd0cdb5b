package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"folio.org/internal/ids"
	"folio.org/internal/obs"
	"folio.org/internal/workflow"
)

type registerDocumentRequest struct {
	Title     string `json:"title"`
	OwnerID   string `json:"owner_id"`
	AdviserID string `json:"adviser_id"`
}

type revisionDetails struct {
	Requirements string     `json:"requirements"`
	Deadline     *time.Time `json:"deadline"`
}

type transitionRequest struct {
	To             string           `json:"to"`
	ExpectedStatus string           `json:"expected_status"`
	Reason         string           `json:"reason"`
	Comments       string           `json:"comments"`
	Revision       *revisionDetails `json:"revision"`
}

type transitionResponse struct {
	Transition workflow.TransitionRecord `json:"transition"`
	Revision   *workflow.RevisionRequest `json:"revision,omitempty"`
}

type listDocumentsResponse struct {
	Items  []workflow.Document `json:"items"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// pathID returns the :id parameter, answering 404 for malformed ids.
func pathID(w http.ResponseWriter, r *http.Request, ps httprouter.Params, what string) (string, bool) {
	id := strings.TrimSpace(ps.ByName("id"))
	if !ids.Valid(id) {
		writeError(w, r, http.StatusNotFound, workflow.KindNotFound, what+" not found")
		return "", false
	}
	return id, true
}

func (a *API) registerDocument(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req registerDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, err.Error())
		return
	}
	doc, err := a.engine.RegisterDocument(r.Context(), actor, req.OwnerID, req.AdviserID, req.Title)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r, "document.register", "document", doc.ID, map[string]any{
		"owner_id":   doc.OwnerID,
		"adviser_id": doc.AdviserID,
	})
	w.Header().Set("Location", "/v1/documents/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, err := parseBoundedInt(q.Get("limit"), "limit", 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, err.Error())
		return
	}
	offset, err := parseBoundedInt(q.Get("offset"), "offset", 0, 0, 1_000_000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, err.Error())
		return
	}
	docs, err := a.engine.ListDocuments(r.Context(), actor, workflow.Status(strings.TrimSpace(q.Get("status"))), limit, offset)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	if docs == nil {
		docs = []workflow.Document{}
	}
	writeJSON(w, http.StatusOK, listDocumentsResponse{Items: docs, Limit: limit, Offset: offset})
}

func (a *API) getDocument(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	doc, err := a.engine.GetDocument(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document":     doc,
		"next_targets": workflow.Targets(doc.Status),
	})
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	history, err := a.engine.GetHistory(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	if history == nil {
		history = []workflow.TransitionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": history})
}

// verifyDocument replays the ledger; staff only.
func (a *API) verifyDocument(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	if !actor.Role.Staff() {
		writeError(w, r, http.StatusForbidden, workflow.KindUnauthorized, "ledger verification is limited to library staff")
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	status, err := a.engine.Verify(r.Context(), id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "status": status, "consistent": true})
}

func (a *API) requestTransition(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, err.Error())
		return
	}
	target, known := workflow.ParseStatus(req.To)
	if !known {
		target = workflow.Status(strings.TrimSpace(req.To))
	}
	expected, _ := workflow.ParseStatus(req.ExpectedStatus)
	if req.Revision != nil {
		if target != workflow.StatusNeedsRevision {
			writeError(w, r, http.StatusBadRequest, workflow.KindValidation, "revision details only apply to needs_revision")
			return
		}
		if err := a.engine.CheckRevisionDeadline(req.Revision.Deadline); err != nil {
			handleWorkflowError(w, r, err)
			return
		}
	}

	rec, err := a.engine.RequestTransition(r.Context(), workflow.TransitionRequest{
		DocumentID:     id,
		Target:         target,
		Actor:          actor,
		ExpectedStatus: expected,
		Reason:         req.Reason,
		Comments:       req.Comments,
	})
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}

	resp := transitionResponse{Transition: rec}
	if rec.ToStatus == workflow.StatusNeedsRevision {
		in := workflow.RevisionInput{
			DocumentID:  id,
			RequestedBy: actor.ID,
			Reason:      rec.Reason,
		}
		if req.Revision != nil {
			in.SpecificRequirements = req.Revision.Requirements
			in.Deadline = req.Revision.Deadline
		}
		rev, err := a.engine.CreateRevisionRequest(r.Context(), in)
		if err != nil {
			// The transition is committed; POST /v1/documents/:id/revisions re-files.
			l := obs.Component("http")
			l.Warn().Err(err).Str("document_id", id).Msg("revision request not recorded")
		} else {
			resp.Revision = &rev
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}
