package user

import (
	"net/http"

	"github.com/grouplan/grouplan/internal/rest"
	log "github.com/sirupsen/logrus"
)

type UserDTO struct {
	Uuid     string `json:"uuid"`
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

type Handler struct {
	userService Service
}

func NewHandler(userService Service) *Handler {
	return &Handler{userService: userService}
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	log.Debug("Getting current user")
	u, err := h.userService.GetCurrentUser(r.Context())
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, UserDTO{Uuid: u.Uuid, Username: u.Username, Admin: u.IsAdmin()})
}
