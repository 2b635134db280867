package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"learning_progress_backend/internal/config"
	"learning_progress_backend/internal/model"
	"learning_progress_backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:    config.ServerConfig{Port: "0", Mode: "test"},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		RateLimit: config.RateLimitConfig{MaxRequests: 100000, WindowMinutes: 1},
		Tracking:  testutil.TrackingConfig(),
	}
	db := testutil.OpenDB(t)
	a := New(cfg, db, nil)
	t.Cleanup(a.services.dispatcher.Close)

	return &testServer{t: t, db: db, router: a.Router}
}

func (s *testServer) do(method, path string, userID uint, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", testutil.Scope.TenantID)
	req.Header.Set("X-Organization-ID", testutil.Scope.OrganizationID)
	if userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(userID))
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/health", 0, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"database":"up"`)
	assert.Contains(t, string(env.Data), `"rollup_mode":"inline"`)
}

func TestTenantHeadersRequired(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tracking/courses/1", nil)
	req.Header.Set("X-User-ID", "7")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(http.MethodGet, "/api/tracking/courses/1", 0, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLearnerFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	const learner uint = 7
	course := testutil.CreateCourse(t, s.db, "Course")
	module := testutil.CreateModule(t, s.db, course.ID, "Module")
	lesson := testutil.CreateLesson(t, s.db, module, "Lesson")
	coursePath := fmt.Sprintf("/api/tracking/courses/%d", course.ID)
	lessonPath := fmt.Sprintf("/api/tracking/lessons/%d", lesson.ID)

	// 未选课
	w, env := s.do(http.MethodPost, lessonPath+"/attempts", learner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, env.Message)

	w, _ = s.do(http.MethodPost, coursePath+"/enrollment", learner, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = s.do(http.MethodPost, lessonPath+"/attempts", learner, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	var track model.LessonTrack
	require.NoError(t, json.Unmarshal(env.Data, &track))
	assert.Equal(t, 1, track.Attempt)

	attemptPath := "/api/tracking/attempts/" + track.ID
	w, _ = s.do(http.MethodGet, attemptPath, 8, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodPatch, attemptPath+"/progress", learner, map[string]interface{}{"completionPercentage": 100})
	require.Equal(t, http.StatusOK, w.Code, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, &track))
	assert.Equal(t, model.TrackCompleted, track.Status)

	w, env = s.do(http.MethodGet, coursePath, learner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var courseTrack model.CourseTrack
	require.NoError(t, json.Unmarshal(env.Data, &courseTrack))
	assert.Equal(t, model.CourseCompleted, courseTrack.Status)
	assert.Equal(t, 1, courseTrack.CompletedLessons)

	// 已完成的尝试不能继续
	w, _ = s.do(http.MethodPost, lessonPath+"/attempts/resume", learner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(http.MethodDelete, coursePath+"/enrollment", learner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown lesson", http.MethodGet, "/api/tracking/lessons/999/status", nil, http.StatusNotFound},
		{"invalid id", http.MethodGet, "/api/tracking/courses/abc", nil, http.StatusBadRequest},
		{"unknown cohort", http.MethodGet, "/api/tracking/cohorts/999/report", nil, http.StatusNotFound},
		{"criteria required", http.MethodPost, "/api/tracking/cohorts/1/batch-completion", map[string]interface{}{}, http.StatusBadRequest},
		{"bad progress", http.MethodPatch, "/api/tracking/attempts/missing/progress", map[string]interface{}{"completionPercentage": 50}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(tt.method, tt.path, 7, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
