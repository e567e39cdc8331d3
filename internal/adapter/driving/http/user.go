package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokensDTO struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type onlineUsersDTO struct {
	Users []string `json:"users"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid request body"})
		return
	}
	name := req.Name
	if name == "" {
		name = req.Username
	}

	user, err := h.Users.Register(r.Context(), name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "User created successfully",
		Data:    toUserDTO(user),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Message: "Invalid request body"})
		return
	}

	user, pair, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setCookie(w, refreshCookie, pair.RefreshToken, h.opts.RefreshTTL)
	h.setCookie(w, accessCookie, pair.AccessToken, h.opts.AccessTTL)
	log.Info().Str("user_id", user.ID.String()).Msg("User logged in")

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "User logged in successfully",
		Data:    tokensDTO{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		User:    toUserDTO(user),
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := userFrom(r.Context())
	h.clearCookie(w, refreshCookie)
	h.clearCookie(w, accessCookie)
	log.Info().Str("user_id", id.String()).Msg("User logged out")
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "User logged out successfully"})
}

func (h *Handler) details(w http.ResponseWriter, r *http.Request) {
	id := domain.UserID(chi.URLParam(r, "id"))
	user, err := h.Users.Details(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "User details found",
		Data:    toUserDTO(user),
	})
}

func (h *Handler) onlineUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := userFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Message: notLoggedInMessage})
		return
	}
	users, err := h.Sessions.OnlineUsers(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.String())
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Online users found",
		Data:    onlineUsersDTO{Users: ids},
	})
}
