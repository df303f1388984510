package group

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/grouplan/grouplan/internal/rest"
	log "github.com/sirupsen/logrus"
)

type GroupDTO struct {
	GroupUuid   string    `json:"groupUuid"`
	Name        string    `json:"name"`
	Master      string    `json:"master"`
	UserAbleAdd bool      `json:"userAbleAdd"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type GroupInputDTO struct {
	Name        string   `json:"name"`
	UserAbleAdd bool     `json:"userAbleAdd"`
	Tags        []string `json:"tags"`
}

type TransferMasterDTO struct {
	NewMaster string `json:"newMaster"`
}

type MemberDTO struct {
	UserUuid  string    `json:"userUuid"`
	Status    int       `json:"status"`
	Master    bool      `json:"master"`
	CreatedAt time.Time `json:"createdAt"`
}

type AddMemberDTO struct {
	UserUuid string `json:"userUuid"`
}

type AddMembersDTO struct {
	UserUuids []string `json:"userUuids"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func toDTO(g Group) GroupDTO {
	return GroupDTO{
		GroupUuid:   g.GroupUuid,
		Name:        g.Name,
		Master:      g.Master,
		UserAbleAdd: g.UserAbleAdd,
		Tags:        nonNil(g.Tags),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating group")
	var input GroupInputDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	group, err := h.service.CreateGroup(r.Context(), input.Name, input.UserAbleAdd, input.Tags)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, toDTO(group))
}

// ListGroups handles GET /api/group?relation=master|join|all&page=&size=&search=
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	relationParam := r.URL.Query().Get("relation")
	if relationParam == "" {
		relationParam = "all"
	}
	relation, err := ParseRelation(relationParam)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		rest.WriteBadRequest(w, "invalid page", err.Error())
		return
	}
	size, err := queryInt(r, "size", DefaultPageSize)
	if err != nil {
		rest.WriteBadRequest(w, "invalid size", err.Error())
		return
	}

	result, err := h.service.GetGroupList(r.Context(), relation, page, size, r.URL.Query().Get("search"))
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	records := make([]GroupDTO, 0, len(result.Records))
	for _, g := range result.Records {
		records = append(records, toDTO(g))
	}
	rest.WriteJSON(w, http.StatusOK, rest.Page[GroupDTO]{
		Records: records,
		Total:   result.Total,
		Page:    result.Page,
		Size:    result.Size,
	})
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.service.GetGroup(r.Context(), mux.Vars(r)["groupUuid"])
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(group))
}

func (h *Handler) EditGroup(w http.ResponseWriter, r *http.Request) {
	log.Debug("Editing group")
	var input GroupInputDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	group, err := h.service.EditGroup(r.Context(), mux.Vars(r)["groupUuid"], input.Name, input.UserAbleAdd, input.Tags)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(group))
}

func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	log.Debug("Deleting group")
	if err := h.service.DeleteGroup(r.Context(), mux.Vars(r)["groupUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TransferMaster(w http.ResponseWriter, r *http.Request) {
	var input TransferMasterDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	if input.NewMaster == "" {
		rest.WriteBadRequest(w, "invalid_argument", "newMaster is required")
		return
	}
	group, err := h.service.TransferMaster(r.Context(), mux.Vars(r)["groupUuid"], input.NewMaster)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, toDTO(group))
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	groupUuid := mux.Vars(r)["groupUuid"]
	members, err := h.service.ListMembers(r.Context(), groupUuid)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]MemberDTO, 0, len(members))
	for i, m := range members {
		dtos = append(dtos, MemberDTO{
			UserUuid:  m.UserUuid,
			Status:    int(m.Status),
			Master:    i == 0,
			CreatedAt: m.CreatedAt,
		})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var input AddMemberDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	if input.UserUuid == "" {
		rest.WriteBadRequest(w, "invalid_argument", "userUuid is required")
		return
	}
	if err := h.service.AddGroupMember(r.Context(), mux.Vars(r)["groupUuid"], input.UserUuid); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	var input AddMembersDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	if err := h.service.AddGroupMembers(r.Context(), mux.Vars(r)["groupUuid"], input.UserUuids); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeleteGroupMember(r.Context(), vars["groupUuid"], vars["memberUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
