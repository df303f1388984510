package app

import (
	"github.com/gorilla/mux"
	"github.com/grouplan/grouplan/internal/metrics"
)

// RegisterRoutes registers all API endpoints on api. The metrics endpoint goes on root, outside the user middleware.
func RegisterRoutes(root *mux.Router, api *mux.Router, deps *Dependencies) {
	root.Handle("/metrics", metrics.Handler(deps.Registry)).Methods("GET")

	// User
	api.HandleFunc("/user/current", deps.UserHandler.CurrentUser).Methods("GET")

	// Groups
	api.HandleFunc("/group", deps.GroupHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/group", deps.GroupHandler.ListGroups).Methods("GET")
	api.HandleFunc("/group/{groupUuid}", deps.GroupHandler.GetGroup).Methods("GET")
	api.HandleFunc("/group/{groupUuid}", deps.GroupHandler.EditGroup).Methods("PUT")
	api.HandleFunc("/group/{groupUuid}", deps.GroupHandler.DeleteGroup).Methods("DELETE")
	api.HandleFunc("/group/{groupUuid}/master", deps.GroupHandler.TransferMaster).Methods("PUT")

	// Group members
	api.HandleFunc("/group/{groupUuid}/member", deps.GroupHandler.ListMembers).Methods("GET")
	api.HandleFunc("/group/{groupUuid}/member", deps.GroupHandler.AddMember).Methods("POST")
	api.HandleFunc("/group/{groupUuid}/member/batch", deps.GroupHandler.AddMembers).Methods("POST")
	api.HandleFunc("/group/{groupUuid}/member/{memberUuid}", deps.GroupHandler.DeleteMember).Methods("DELETE")

	// Schedules
	api.HandleFunc("/schedule", deps.ScheduleHandler.AddSchedule).Methods("POST")
	api.HandleFunc("/schedule", deps.ScheduleHandler.ListSchedules).Methods("GET")
	api.HandleFunc("/schedule/{scheduleUuid}", deps.ScheduleHandler.GetSchedule).Methods("GET")
	api.HandleFunc("/schedule/{scheduleUuid}", deps.ScheduleHandler.EditSchedule).Methods("PUT")
	api.HandleFunc("/schedule/{scheduleUuid}", deps.ScheduleHandler.DeleteSchedule).Methods("DELETE")

	// Agenda
	api.HandleFunc("/agenda/priority", deps.AgendaHandler.PriorityList).Methods("GET")
	api.HandleFunc("/agenda/export.ics", deps.AgendaHandler.ExportICS).Methods("GET")
	api.HandleFunc("/agenda", deps.AgendaHandler.List).Methods("GET")

	// Course timetables
	api.HandleFunc("/curriculum/time", deps.CurriculumHandler.CreateClassTime).Methods("POST")
	api.HandleFunc("/curriculum/time/{classTimeUuid}", deps.CurriculumHandler.EditClassTime).Methods("PUT")
	api.HandleFunc("/curriculum/time/{classTimeUuid}", deps.CurriculumHandler.DeleteClassTime).Methods("DELETE")
	api.HandleFunc("/curriculum/market", deps.CurriculumHandler.ListMarket).Methods("GET")
	api.HandleFunc("/curriculum/market/{classTimeUuid}", deps.CurriculumHandler.GetMarketClassTime).Methods("GET")
	api.HandleFunc("/curriculum/my-time", deps.CurriculumHandler.ListMyClassTimes).Methods("GET")
	api.HandleFunc("/curriculum/my-time/{classTimeUuid}", deps.CurriculumHandler.GetMyClassTime).Methods("GET")
	api.HandleFunc("/curriculum/my-time/{classTimeUuid}", deps.CurriculumHandler.AddMyClassTime).Methods("POST")
	api.HandleFunc("/curriculum/my-time/{classTimeUuid}", deps.CurriculumHandler.DeleteMyClassTime).Methods("DELETE")
	api.HandleFunc("/curriculum/grade", deps.CurriculumHandler.CreateClassGrade).Methods("POST")
	api.HandleFunc("/curriculum/grade", deps.CurriculumHandler.ListClassGrades).Methods("GET")
	api.HandleFunc("/curriculum/grade/{classGradeUuid}", deps.CurriculumHandler.GetClassGrade).Methods("GET")
	api.HandleFunc("/curriculum/grade/{classGradeUuid}", deps.CurriculumHandler.EditClassGrade).Methods("PUT")
	api.HandleFunc("/curriculum/grade/{classGradeUuid}", deps.CurriculumHandler.DeleteClassGrade).Methods("DELETE")
	api.HandleFunc("/curriculum/grade/{classGradeUuid}/class", deps.CurriculumHandler.ListLessons).Methods("GET")
	api.HandleFunc("/curriculum/grade/{classGradeUuid}/class", deps.CurriculumHandler.AddClass).Methods("POST")
	api.HandleFunc("/curriculum/grade/{classGradeUuid}/class", deps.CurriculumHandler.DeleteClasses).Methods("DELETE")
	api.HandleFunc("/curriculum/grade/{classGradeUuid}/class/move", deps.CurriculumHandler.MoveClasses).Methods("PUT")
	api.HandleFunc("/curriculum/class/{classUuid}", deps.CurriculumHandler.MoveClass).Methods("PUT")
	api.HandleFunc("/curriculum/class/{classUuid}", deps.CurriculumHandler.DeleteClass).Methods("DELETE")
}
