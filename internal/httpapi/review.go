package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"folio.org/internal/workflow"
)

type addNoteRequest struct {
	NoteType string `json:"note_type"`
	Text     string `json:"text"`
}

func (a *API) listRevisions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	reqs, err := a.engine.ListRevisionRequests(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []workflow.RevisionRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reqs})
}

type fileRevisionRequest struct {
	Reason       string     `json:"reason"`
	Requirements string     `json:"requirements"`
	Deadline     *time.Time `json:"deadline"`
}

// fileRevision records the revision request of a document already in
// needs_revision that has none open.
func (a *API) fileRevision(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	var req fileRevisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, err.Error())
		return
	}
	rev, err := a.engine.FileRevisionRequest(r.Context(), actor, workflow.RevisionInput{
		DocumentID:           id,
		Reason:               req.Reason,
		SpecificRequirements: req.Requirements,
		Deadline:             req.Deadline,
	})
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r, "revision.file", "revision_request", rev.ID, map[string]any{"document_id": id})
	writeJSON(w, http.StatusCreated, rev)
}

func (a *API) startRevision(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "revision request")
	if !ok {
		return
	}
	req, err := a.engine.StartRevision(r.Context(), actor, id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r, "revision.start", "revision_request", req.ID, map[string]any{"document_id": req.DocumentID})
	writeJSON(w, http.StatusOK, req)
}

func (a *API) listNotes(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	unresolved := false
	if raw := r.URL.Query().Get("unresolved"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, workflow.KindValidation, "unresolved must be a boolean")
			return
		}
		unresolved = v
	}
	notes, err := a.engine.ListCurationNotes(r.Context(), actor, id, unresolved)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	if notes == nil {
		notes = []workflow.CurationNote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": notes})
}

func (a *API) addNote(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "document")
	if !ok {
		return
	}
	var req addNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, workflow.KindValidation, err.Error())
		return
	}
	noteType, known := workflow.ParseNoteType(req.NoteType)
	if !known {
		noteType = workflow.NoteType(req.NoteType)
	}
	note, err := a.engine.AddCurationNote(r.Context(), actor, id, noteType, req.Text)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r, "curation.note.add", "curation_note", note.ID, map[string]any{
		"document_id": id,
		"note_type":   string(note.NoteType),
	})
	writeJSON(w, http.StatusCreated, note)
}

func (a *API) resolveNote(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, ps, "curation note")
	if !ok {
		return
	}
	if err := a.engine.ResolveCurationNote(r.Context(), actor, id); err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	a.audit(r, "curation.note.resolve", "curation_note", id, nil)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "resolved": true})
}

func (a *API) stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	counts, err := a.engine.CountByStatus(r.Context(), actor)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}
