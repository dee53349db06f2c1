package api

import "net/http"

func (r *Router) handleBackupCreate(w http.ResponseWriter, req *http.Request) {
	info, err := r.backups.Backup(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (r *Router) handleBackupList(w http.ResponseWriter, req *http.Request) {
	backups, err := r.backups.ListBackups()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

func (r *Router) handleBackupDelete(w http.ResponseWriter, req *http.Request) {
	if err := r.backups.Delete(req.PathValue("filename")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleMaintenanceStatus(w http.ResponseWriter, req *http.Request) {
	st, err := r.maintenance.Status(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (r *Router) handleMaintenanceOptimize(w http.ResponseWriter, req *http.Request) {
	if err := r.maintenance.Optimize(req.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "optimized"})
}
