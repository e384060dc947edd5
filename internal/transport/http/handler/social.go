package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/foraling/foraling-server/internal/application/social"
	"github.com/foraling/foraling-server/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// SocialHandler handles favorites and store comments.
type SocialHandler struct {
	svc social.Service
}

func NewSocialHandler(svc social.Service) *SocialHandler { return &SocialHandler{svc: svc} }

// ToggleFavorite flips the favorite mark for the authenticated user.
func (h *SocialHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	on, err := h.svc.ToggleFavorite(r.Context(), claims.UserID, chi.URLParam(r, "storeID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorited": on})
}

func (h *SocialHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	favs, err := h.svc.ListFavorites(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favs)
}

func (h *SocialHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.PostComment(r.Context(), claims.UserID, chi.URLParam(r, "storeID"), body.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *SocialHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	var limit int32
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = int32(n)
		}
	}
	comments, err := h.svc.ListComments(r.Context(), chi.URLParam(r, "storeID"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}
