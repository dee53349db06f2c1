package api

import (
	"encoding/json"
	"net/http"
)

// manualEngine attributes cache entries a human corrected by hand.
const manualEngine = "manual"

func (r *Router) handleTranslationLookup(w http.ResponseWriter, req *http.Request) {
	text := req.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "text parameter required")
		return
	}

	translated, ok, err := r.translations.Get(req.Context(), text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		// A reverse lookup helps the UI find what produced a bad value.
		originals, err := r.translations.GetByTranslatedText(req.Context(), text)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(originals) == 0 {
			writeError(w, http.StatusNotFound, "no cache entry")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"translated": text, "originals": originals})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"original": text, "translated": translated})
}

func (r *Router) handleTranslationCorrect(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Original   string `json:"original"`
		Translated string `json:"translated"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Original == "" {
		writeError(w, http.StatusBadRequest, "original required")
		return
	}

	if err := r.translations.Put(req.Context(), body.Original, body.Translated, manualEngine); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (r *Router) handleTranslationDelete(w http.ResponseWriter, req *http.Request) {
	text := req.URL.Query().Get("text")
	if text == "" {
		writeError(w, http.StatusBadRequest, "text parameter required")
		return
	}
	if err := r.translations.Delete(req.Context(), text); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
