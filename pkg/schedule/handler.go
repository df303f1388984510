package schedule

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/grouplan/grouplan/internal/rest"
	log "github.com/sirupsen/logrus"
)

type ScheduleDTO struct {
	ScheduleUuid string    `json:"scheduleUuid"`
	UserUuid     *string   `json:"userUuid"`
	GroupUuid    *string   `json:"groupUuid"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Type         int       `json:"type"`
	LoopType     int       `json:"loopType"`
	CustomLoop   string    `json:"customLoop"`
	Tags         []string  `json:"tags"`
	Priority     int       `json:"priority"`
	Resources    []string  `json:"resources"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type ContentDTO struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Type        int       `json:"type"`
	LoopType    int       `json:"loopType"`
	CustomLoop  string    `json:"customLoop"`
	Tags        []string  `json:"tags"`
	Priority    int       `json:"priority"`
}

type AddScheduleDTO struct {
	ContentDTO
	AddToGroup bool     `json:"addToGroup"`
	GroupUuid  string   `json:"groupUuid"`
	Resources  []string `json:"resources"`
}

type EditScheduleDTO struct {
	ContentDTO
	GroupUuid       *string  `json:"groupUuid"`
	AddResources    []string `json:"addResources"`
	DeleteResources []string `json:"deleteResources"`
}

func ToDTO(s Schedule) ScheduleDTO {
	return ScheduleDTO{
		ScheduleUuid: s.ScheduleUuid,
		UserUuid:     s.UserUuid,
		GroupUuid:    s.GroupUuid,
		Name:         s.Name,
		Description:  s.Description,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Type:         int(s.Type),
		LoopType:     s.LoopType,
		CustomLoop:   s.CustomLoop,
		Tags:         nonNil(s.Tags),
		Priority:     int(s.Priority),
		Resources:    nonNil(s.Resources),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func ToDTOs(schedules []Schedule) []ScheduleDTO {
	dtos := make([]ScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		dtos = append(dtos, ToDTO(s))
	}
	return dtos
}

func (c ContentDTO) toContent() Content {
	return Content{
		Name:        c.Name,
		Description: c.Description,
		StartTime:   c.StartTime,
		EndTime:     c.EndTime,
		Type:        Type(c.Type),
		LoopType:    c.LoopType,
		CustomLoop:  c.CustomLoop,
		Tags:        c.Tags,
		Priority:    Priority(c.Priority),
	}
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) AddSchedule(w http.ResponseWriter, r *http.Request) {
	log.Debug("Adding schedule")
	var input AddScheduleDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	schedule, err := h.service.AddSchedule(r.Context(), AddInput{
		Content:    input.toContent(),
		AddToGroup: input.AddToGroup,
		GroupUuid:  input.GroupUuid,
		Resources:  input.Resources,
	})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, ToDTO(schedule))
}

func (h *Handler) EditSchedule(w http.ResponseWriter, r *http.Request) {
	log.Debug("Editing schedule")
	var input EditScheduleDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	schedule, err := h.service.EditSchedule(r.Context(), mux.Vars(r)["scheduleUuid"], EditInput{
		Content:         input.toContent(),
		GroupUuid:       input.GroupUuid,
		AddResources:    input.AddResources,
		DeleteResources: input.DeleteResources,
	})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTO(schedule))
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	log.Debug("Deleting schedule")
	if err := h.service.DeleteSchedule(r.Context(), mux.Vars(r)["scheduleUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.GetSchedule(r.Context(), mux.Vars(r)["scheduleUuid"])
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, ToDTO(schedule))
}

// ListSchedules handles GET /api/schedule?page=&size=&search=
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	page, size := 1, DefaultPageSize
	var err error
	if raw := r.URL.Query().Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			rest.WriteBadRequest(w, "invalid page", err.Error())
			return
		}
	}
	if raw := r.URL.Query().Get("size"); raw != "" {
		if size, err = strconv.Atoi(raw); err != nil {
			rest.WriteBadRequest(w, "invalid size", err.Error())
			return
		}
	}

	result, err := h.service.GetScheduleList(r.Context(), page, size, r.URL.Query().Get("search"))
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, rest.Page[ScheduleDTO]{
		Records: ToDTOs(result.Records),
		Total:   result.Total,
		Page:    result.Page,
		Size:    result.Size,
	})
}
