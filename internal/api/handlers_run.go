package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sydlexius/playbill/internal/reconcile"
	"github.com/sydlexius/playbill/internal/runner"
)

func (r *Router) handleRunStart(w http.ResponseWriter, req *http.Request) {
	var opts runner.RunOptions
	if err := json.NewDecoder(req.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := r.runner.Run(opts)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (r *Router) handleRunStop(w http.ResponseWriter, req *http.Request) {
	r.runner.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (r *Router) handleRunStatus(w http.ResponseWriter, req *http.Request) {
	status := r.runner.Status()
	if status == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (r *Router) handleProcessItem(w http.ResponseWriter, req *http.Request) {
	itemID := req.PathValue("id")
	force := req.URL.Query().Get("force") == "true"

	res, err := r.processor.ProcessItem(req.Context(), itemID, force)
	if err != nil {
		if errors.Is(err, reconcile.ErrAborted) {
			writeJSON(w, http.StatusOK, res)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
