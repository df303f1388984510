package curriculum

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/grouplan/grouplan/internal/rest"
	log "github.com/sirupsen/logrus"
)

type ClassTimeDTO struct {
	ClassTimeUuid string    `json:"classTimeUuid"`
	UserUuid      string    `json:"userUuid"`
	Name          string    `json:"name"`
	Ticks         []Tick    `json:"ticks"`
	Public        bool      `json:"public"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type ClassTimeInputDTO struct {
	Name   string `json:"name"`
	Ticks  []Tick `json:"ticks"`
	Public bool   `json:"public"`
}

type ClassGradeDTO struct {
	ClassGradeUuid string    `json:"classGradeUuid"`
	UserUuid       string    `json:"userUuid"`
	ClassTimeUuid  string    `json:"classTimeUuid"`
	Nickname       string    `json:"nickname"`
	SemesterBegin  string    `json:"semesterBegin"`
	SemesterEnd    string    `json:"semesterEnd"`
	Weeks          int       `json:"weeks"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type ClassGradeInputDTO struct {
	Nickname      string `json:"nickname"`
	ClassTimeUuid string `json:"classTimeUuid"`
	SemesterBegin string `json:"semesterBegin"`
	SemesterEnd   string `json:"semesterEnd"`
}

type SlotDTO struct {
	DayTick   int `json:"dayTick"`
	StartTick int `json:"startTick"`
	EndTick   int `json:"endTick"`
}

type ClassDTO struct {
	ClassUuid      string    `json:"classUuid"`
	ClassGradeUuid string    `json:"classGradeUuid"`
	Name           string    `json:"name"`
	Teacher        string    `json:"teacher"`
	Location       string    `json:"location"`
	Week           int       `json:"week"`
	DayTick        int       `json:"dayTick"`
	StartTick      int       `json:"startTick"`
	EndTick        int       `json:"endTick"`
	CreatedAt      time.Time `json:"createdAt"`
}

type ClassInputDTO struct {
	Name     string `json:"name"`
	Teacher  string `json:"teacher"`
	Location string `json:"location"`
	Weeks    []int  `json:"weeks"`
	SlotDTO
}

type MoveClassDTO struct {
	Week int `json:"week"`
	SlotDTO
}

type MoveClassesDTO struct {
	Name string  `json:"name"`
	From SlotDTO `json:"from"`
	To   SlotDTO `json:"to"`
}

type LessonDTO struct {
	ClassDTO
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type CountDTO struct {
	Count int `json:"count"`
}

func (d SlotDTO) toSlot() Slot {
	return Slot{DayTick: d.DayTick, StartTick: d.StartTick, EndTick: d.EndTick}
}

func classTimeToDTO(ct ClassTime) ClassTimeDTO {
	ticks := ct.Ticks
	if ticks == nil {
		ticks = []Tick{}
	}
	return ClassTimeDTO{
		ClassTimeUuid: ct.ClassTimeUuid,
		UserUuid:      ct.UserUuid,
		Name:          ct.Name,
		Ticks:         ticks,
		Public:        ct.Public,
		CreatedAt:     ct.CreatedAt,
		UpdatedAt:     ct.UpdatedAt,
	}
}

func gradeToDTO(g ClassGrade) ClassGradeDTO {
	return ClassGradeDTO{
		ClassGradeUuid: g.ClassGradeUuid,
		UserUuid:       g.UserUuid,
		ClassTimeUuid:  g.ClassTimeUuid,
		Nickname:       g.Nickname,
		SemesterBegin:  g.SemesterBegin.Format(dateLayout),
		SemesterEnd:    g.SemesterEnd.Format(dateLayout),
		Weeks:          g.Weeks(),
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

func classToDTO(c Class) ClassDTO {
	return ClassDTO{
		ClassUuid:      c.ClassUuid,
		ClassGradeUuid: c.ClassGradeUuid,
		Name:           c.Name,
		Teacher:        c.Teacher,
		Location:       c.Location,
		Week:           c.Week,
		DayTick:        c.DayTick,
		StartTick:      c.StartTick,
		EndTick:        c.EndTick,
		CreatedAt:      c.CreatedAt,
	}
}

func pageToDTO(p Page) rest.Page[ClassTimeDTO] {
	records := make([]ClassTimeDTO, 0, len(p.Records))
	for _, ct := range p.Records {
		records = append(records, classTimeToDTO(ct))
	}
	return rest.Page[ClassTimeDTO]{Records: records, Total: p.Total, Page: p.Page, Size: p.Size}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// queryPage reads page and size, writing a bad request when either is malformed.
func queryPage(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		rest.WriteBadRequest(w, "invalid page", err.Error())
		return 0, 0, false
	}
	size, err := queryInt(r, "size", DefaultPageSize)
	if err != nil {
		rest.WriteBadRequest(w, "invalid size", err.Error())
		return 0, 0, false
	}
	return page, size, true
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) CreateClassTime(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating class time")
	var input ClassTimeInputDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	ct, err := h.service.CreateClassTime(r.Context(), ClassTimeInput{Name: input.Name, Ticks: input.Ticks, Public: input.Public})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, classTimeToDTO(ct))
}

func (h *Handler) EditClassTime(w http.ResponseWriter, r *http.Request) {
	var input ClassTimeInputDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	ct, err := h.service.EditClassTime(r.Context(), mux.Vars(r)["classTimeUuid"],
		ClassTimeInput{Name: input.Name, Ticks: input.Ticks, Public: input.Public})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, classTimeToDTO(ct))
}

func (h *Handler) DeleteClassTime(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteClassTime(r.Context(), mux.Vars(r)["classTimeUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMarket handles GET /api/curriculum/market?page=&size=
func (h *Handler) ListMarket(w http.ResponseWriter, r *http.Request) {
	page, size, ok := queryPage(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetClassTimeMarketList(r.Context(), page, size)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, pageToDTO(result))
}

func (h *Handler) GetMarketClassTime(w http.ResponseWriter, r *http.Request) {
	ct, err := h.service.GetClassTimeMarket(r.Context(), mux.Vars(r)["classTimeUuid"])
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, classTimeToDTO(ct))
}

func (h *Handler) AddMyClassTime(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AddMyClassTime(r.Context(), mux.Vars(r)["classTimeUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteMyClassTime(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMyClassTime(r.Context(), mux.Vars(r)["classTimeUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMyClassTimes handles GET /api/curriculum/my-time?page=&size=
func (h *Handler) ListMyClassTimes(w http.ResponseWriter, r *http.Request) {
	page, size, ok := queryPage(w, r)
	if !ok {
		return
	}
	result, err := h.service.GetMyClassTimeList(r.Context(), page, size)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, pageToDTO(result))
}

func (h *Handler) GetMyClassTime(w http.ResponseWriter, r *http.Request) {
	ct, err := h.service.GetMyClassTime(r.Context(), mux.Vars(r)["classTimeUuid"])
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, classTimeToDTO(ct))
}

func (h *Handler) CreateClassGrade(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating class grade")
	var input ClassGradeInputDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	grade, err := h.service.CreateClassGrade(r.Context(), GradeInput(input))
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, gradeToDTO(grade))
}

func (h *Handler) EditClassGrade(w http.ResponseWriter, r *http.Request) {
	var input ClassGradeInputDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	grade, err := h.service.EditClassGrade(r.Context(), mux.Vars(r)["classGradeUuid"], GradeInput(input))
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, gradeToDTO(grade))
}

func (h *Handler) DeleteClassGrade(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteClassGrade(r.Context(), mux.Vars(r)["classGradeUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetClassGrade(w http.ResponseWriter, r *http.Request) {
	grade, err := h.service.GetClassGrade(r.Context(), mux.Vars(r)["classGradeUuid"])
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, gradeToDTO(grade))
}

func (h *Handler) ListClassGrades(w http.ResponseWriter, r *http.Request) {
	grades, err := h.service.GetClassGradeList(r.Context())
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]ClassGradeDTO, 0, len(grades))
	for _, g := range grades {
		dtos = append(dtos, gradeToDTO(g))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddClass(w http.ResponseWriter, r *http.Request) {
	log.Debug("Adding class")
	var input ClassInputDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	classes, err := h.service.AddClass(r.Context(), mux.Vars(r)["classGradeUuid"], ClassInput{
		Name:     input.Name,
		Teacher:  input.Teacher,
		Location: input.Location,
		Weeks:    input.Weeks,
		Slot:     input.toSlot(),
	})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]ClassDTO, 0, len(classes))
	for _, c := range classes {
		dtos = append(dtos, classToDTO(c))
	}
	rest.WriteJSON(w, http.StatusCreated, dtos)
}

// ListLessons handles GET /api/curriculum/grade/{classGradeUuid}/class?week=
func (h *Handler) ListLessons(w http.ResponseWriter, r *http.Request) {
	week, err := queryInt(r, "week", 0)
	if err != nil {
		rest.WriteBadRequest(w, "invalid week", err.Error())
		return
	}
	lessons, err := h.service.GetLessons(r.Context(), mux.Vars(r)["classGradeUuid"], week)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	dtos := make([]LessonDTO, 0, len(lessons))
	for _, l := range lessons {
		dtos = append(dtos, LessonDTO{ClassDTO: classToDTO(l.Class), Start: l.Start, End: l.End})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) MoveClasses(w http.ResponseWriter, r *http.Request) {
	var input MoveClassesDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	count, err := h.service.MoveClasses(r.Context(), mux.Vars(r)["classGradeUuid"], input.Name, input.From.toSlot(), input.To.toSlot())
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, CountDTO{Count: count})
}

// DeleteClasses handles DELETE /api/curriculum/grade/{classGradeUuid}/class?name=&dayTick=&startTick=&endTick=
func (h *Handler) DeleteClasses(w http.ResponseWriter, r *http.Request) {
	var slot Slot
	for name, dst := range map[string]*int{"dayTick": &slot.DayTick, "startTick": &slot.StartTick, "endTick": &slot.EndTick} {
		value, err := queryInt(r, name, 0)
		if err != nil {
			rest.WriteBadRequest(w, "invalid "+name, err.Error())
			return
		}
		*dst = value
	}
	count, err := h.service.DeleteClasses(r.Context(), mux.Vars(r)["classGradeUuid"], r.URL.Query().Get("name"), slot)
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, CountDTO{Count: count})
}

func (h *Handler) MoveClass(w http.ResponseWriter, r *http.Request) {
	var input MoveClassDTO
	if err := rest.DecodeJSON(r, &input); err != nil {
		rest.WriteError(w, err)
		return
	}
	c, err := h.service.MoveClass(r.Context(), mux.Vars(r)["classUuid"], Placement{Week: input.Week, Slot: input.toSlot()})
	if err != nil {
		rest.WriteError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, classToDTO(c))
}

func (h *Handler) DeleteClass(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteClass(r.Context(), mux.Vars(r)["classUuid"]); err != nil {
		rest.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
