package schedule

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/grouplan/grouplan/internal/rest"
	"github.com/grouplan/grouplan/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlerTest(t *testing.T) (testEnv, *mux.Router) {
	env := setupServiceTest(t)
	handler := NewHandler(env.service)
	router := mux.NewRouter()
	router.HandleFunc("/api/schedule", handler.AddSchedule).Methods("POST")
	router.HandleFunc("/api/schedule", handler.ListSchedules).Methods("GET")
	router.HandleFunc("/api/schedule/{scheduleUuid}", handler.GetSchedule).Methods("GET")
	router.HandleFunc("/api/schedule/{scheduleUuid}", handler.EditSchedule).Methods("PUT")
	router.HandleFunc("/api/schedule/{scheduleUuid}", handler.DeleteSchedule).Methods("DELETE")
	return env, router
}

func serve(router http.Handler, userUuid string, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req = req.WithContext(user.WithUser(req.Context(), user.User{Uuid: userUuid}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func contentDTO(name string) ContentDTO {
	return ContentDTO{
		Name:      name,
		StartTime: now,
		EndTime:   now.Add(time.Hour),
		Type:      int(TypeRanged),
		Tags:      []string{"b", "a"},
		Priority:  int(PriorityNormal),
	}
}

func TestHandler_PersonalScheduleLifecycle(t *testing.T) {
	_, router := setupHandlerTest(t)

	// create
	w := serve(router, member, http.MethodPost, "/api/schedule", AddScheduleDTO{ContentDTO: contentDTO("Gym")})
	require.Equal(t, http.StatusCreated, w.Code)
	var created ScheduleDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	require.NotNil(t, created.UserUuid)
	assert.Equal(t, member, *created.UserUuid)
	assert.Nil(t, created.GroupUuid)
	assert.Equal(t, []string{"b", "a"}, created.Tags)
	assert.NotNil(t, created.Resources)

	// edit
	edit := EditScheduleDTO{ContentDTO: contentDTO("Gym day")}
	w = serve(router, member, http.MethodPut, "/api/schedule/"+created.ScheduleUuid, edit)
	require.Equal(t, http.StatusOK, w.Code)

	// list with search
	w = serve(router, member, http.MethodGet, "/api/schedule?page=1&size=5&search=day", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page rest.Page[ScheduleDTO]
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Gym day", page.Records[0].Name)

	// delete
	w = serve(router, member, http.MethodDelete, "/api/schedule/"+created.ScheduleUuid, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = serve(router, member, http.MethodGet, "/api/schedule/"+created.ScheduleUuid, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ErrorStatuses(t *testing.T) {
	env, router := setupHandlerTest(t)
	g := env.createGroup(t, false)
	personal := serve(router, member, http.MethodPost, "/api/schedule", AddScheduleDTO{ContentDTO: contentDTO("mine")})
	require.Equal(t, http.StatusCreated, personal.Code)
	var mine ScheduleDTO
	require.NoError(t, json.NewDecoder(personal.Body).Decode(&mine))

	badPriority := contentDTO("bad")
	badPriority.Priority = 5

	tests := []struct {
		name     string
		userUuid string
		method   string
		target   string
		body     any
		status   int
	}{
		{"invalid priority", member, http.MethodPost, "/api/schedule", AddScheduleDTO{ContentDTO: badPriority}, http.StatusBadRequest},
		{"malformed body", member, http.MethodPost, "/api/schedule", "not an object", http.StatusBadRequest},
		{"member may not add when group disallows", member, http.MethodPost, "/api/schedule",
			AddScheduleDTO{ContentDTO: contentDTO("x"), AddToGroup: true, GroupUuid: g.GroupUuid}, http.StatusForbidden},
		{"outsider is not a member", outside, http.MethodPost, "/api/schedule",
			AddScheduleDTO{ContentDTO: contentDTO("x"), AddToGroup: true, GroupUuid: g.GroupUuid}, http.StatusForbidden},
		{"unknown group", member, http.MethodPost, "/api/schedule",
			AddScheduleDTO{ContentDTO: contentDTO("x"), AddToGroup: true, GroupUuid: "missing"}, http.StatusNotFound},
		{"foreign personal schedule", outside, http.MethodGet, "/api/schedule/" + mine.ScheduleUuid, nil, http.StatusForbidden},
		{"invalid page", member, http.MethodGet, "/api/schedule?page=x", nil, http.StatusBadRequest},
		{"page beyond the limit", member, http.MethodGet, "/api/schedule?page=9223372036854775807", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.userUuid, tt.method, tt.target, tt.body)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}
