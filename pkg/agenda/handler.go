package agenda

import (
	"net/http"

	"github.com/grouplan/grouplan/internal/rest"
	"github.com/grouplan/grouplan/pkg/schedule"
	log "github.com/sirupsen/logrus"
)

type PriorityBucketsDTO struct {
	Important []schedule.ScheduleDTO `json:"important"`
	Normal    []schedule.ScheduleDTO `json:"normal"`
	General   []schedule.ScheduleDTO `json:"general"`
	Low       []schedule.ScheduleDTO `json:"low"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// PriorityList handles GET /api/agenda/priority?period=
func (h *Handler) PriorityList(w http.ResponseWriter, r *http.Request) {
	period, err := ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	buckets, err := h.service.GetSchedulePriorityList(r.Context(), period)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, PriorityBucketsDTO{
		Important: schedule.ToDTOs(buckets.Important),
		Normal:    schedule.ToDTOs(buckets.Normal),
		General:   schedule.ToDTOs(buckets.General),
		Low:       schedule.ToDTOs(buckets.Low),
	})
}

// List handles GET /api/agenda?start=&end=[&group=]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var groupUuid *string
	if g := query.Get("group"); g != "" {
		groupUuid = &g
	}
	schedules, err := h.service.GetScheduleListMaybeGroup(r.Context(), groupUuid, query.Get("start"), query.Get("end"))
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, schedule.ToDTOs(schedules))
}

// ExportICS handles GET /api/agenda/export.ics?start=&end=
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	calendar, err := h.service.ExportICS(r.Context(), query.Get("start"), query.Get("end"))
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="agenda.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(calendar)); err != nil {
		log.Errorf("failed to write calendar: %v", err)
	}
}
