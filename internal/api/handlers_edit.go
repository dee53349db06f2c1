package api

import (
	"encoding/json"
	"net/http"

	"github.com/sydlexius/playbill/internal/reconcile"
)

func (r *Router) handleEditOpen(w http.ResponseWriter, req *http.Request) {
	itemID := req.PathValue("id")

	cast, err := r.processor.CastForEditing(req.Context(), itemID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	session := r.editSessions.Open(cast)
	writeJSON(w, http.StatusCreated, session)
}

func (r *Router) handleEditGet(w http.ResponseWriter, req *http.Request) {
	session := r.editSessions.Get(req.PathValue("token"))
	if session == nil {
		writeError(w, http.StatusNotFound, "unknown or expired edit session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (r *Router) handleEditApply(w http.ResponseWriter, req *http.Request) {
	token := req.PathValue("token")
	session := r.editSessions.Get(token)
	if session == nil {
		writeError(w, http.StatusNotFound, "unknown or expired edit session")
		return
	}

	var body struct {
		Cast []reconcile.CastMember `json:"cast"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Cast) == 0 {
		writeError(w, http.StatusBadRequest, "cast must not be empty")
		return
	}

	ec := session.Cast
	if err := r.processor.ApplyManualCast(req.Context(), ec.ItemID, ec.ItemName, ec.ItemType, body.Cast); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	r.editSessions.Close(token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied", "item_id": ec.ItemID})
}

func (r *Router) handleEditTranslate(w http.ResponseWriter, req *http.Request) {
	session := r.editSessions.Get(req.PathValue("token"))
	if session == nil {
		writeError(w, http.StatusNotFound, "unknown or expired edit session")
		return
	}

	var body struct {
		Texts []string `json:"texts"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ec := session.Cast
	translated, err := r.processor.TranslateTexts(req.Context(), body.Texts, ec.ItemName, 0)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"translations": translated})
}
