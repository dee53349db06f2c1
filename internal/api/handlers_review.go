package api

import "net/http"

func (r *Router) handleReviewList(w http.ResponseWriter, req *http.Request) {
	limit := intQuery(req, "limit", 50)
	offset := intQuery(req, "offset", 0)

	entries, total, err := r.logs.ListReview(req.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (r *Router) handleReviewRemove(w http.ResponseWriter, req *http.Request) {
	itemID := req.PathValue("id")
	if err := r.logs.RemoveReview(req.Context(), itemID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleClearProcessed(w http.ResponseWriter, req *http.Request) {
	if err := r.logs.ClearProcessed(req.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
