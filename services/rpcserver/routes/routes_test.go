// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classlab/services/rpcserver/dispatch"
	"github.com/AleutianAI/classlab/services/rpcserver/experiment"
	"github.com/AleutianAI/classlab/services/rpcserver/handlers"
	"github.com/AleutianAI/classlab/services/rpcserver/middleware"
	"github.com/AleutianAI/classlab/services/rpcserver/observability"
	"github.com/AleutianAI/classlab/services/rpcserver/state"
	"github.com/AleutianAI/classlab/services/rpcserver/storage"
)

const squareFuncs = `
function "square" {
  params = ["x"]
  doc    = "Return x squared."
  body   = x * x
}
`

// newTestServer scaffolds a project root with one experiment and builds
// the full router against it.
func newTestServer(t *testing.T, expNames ...string) (*gin.Engine, *experiment.Manager, *state.State) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	for _, name := range expNames {
		funcsDir := filepath.Join(root, "experiments", name, "funcs")
		require.NoError(t, os.MkdirAll(funcsDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(funcsDir, "functions.hcl"), []byte(squareFuncs), 0o644))
	}

	gate := state.New()
	manager := experiment.NewManager(root, gate)
	t.Cleanup(manager.Close)

	discovered := manager.Discover()
	for _, name := range discovered {
		_, err := manager.Mount(name)
		require.NoError(t, err)
	}
	manager.SetDefault(experiment.ChooseDefault("", discovered))

	reg := prometheus.NewRegistry()
	env := &handlers.Env{
		Gate:    gate,
		Manager: manager,
		Dispatcher: &dispatch.Dispatcher{
			Gate:    gate,
			Metrics: observability.NewMetrics(reg),
		},
		Version: "0.1.0",
	}

	router := gin.New()
	router.Use(middleware.Sessions(middleware.NewSessionSecret("test")))
	SetupRoutes(router, env, reg)
	return router, manager, gate
}

type session struct {
	router  *gin.Engine
	cookies []*http.Cookie
}

// do issues a request, carrying and updating the session's cookies.
func (s *session) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if fresh := w.Result().Cookies(); len(fresh) > 0 {
		s.cookies = fresh
	}
	return w
}

func (s *session) login(t *testing.T) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/admin/login", `{"username":"admin","password":"password"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// fetchAll asks storage for everything it will hand back in one page.
func fetchAll() storage.FetchOptions {
	return storage.FetchOptions{N: storage.FetchLimit}
}

func TestStartAddCallLogScenario(t *testing.T) {
	router, _, _ := newTestServer(t, "e1")
	s := &session{router: router}
	s.login(t)

	w := s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"active":"e1"}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/admin/add-student", `{"student_id":"s001","name":"Ada Lovelace"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/call", `{"student_id":"s001","func_name":"square","args":[7],"experiment_name":"e1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"result":49}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/admin/logs?student_id=s001", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Logs []struct {
			FuncName string          `json:"func_name"`
			Result   json.RawMessage `json:"result_json"`
			Error    *string         `json:"error"`
		} `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, "square", body.Logs[0].FuncName)
	assert.JSONEq(t, "49", string(body.Logs[0].Result))
	assert.Nil(t, body.Logs[0].Error)
}

func TestUnknownStudentGets403AndNoLogRow(t *testing.T) {
	router, manager, _ := newTestServer(t, "e1")
	s := &session{router: router}
	s.login(t)
	s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)

	w := s.do(t, http.MethodPost, "/call", `{"student_id":"unknown","func_name":"square","args":[7],"experiment_name":"e1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid student ID 'unknown'")

	expCtx, ok := manager.Get("e1")
	require.True(t, ok)
	rows, err := expCtx.Storage.FetchLogs(fetchAll())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStopThenCallGets409AndNoLogRow(t *testing.T) {
	router, manager, _ := newTestServer(t, "e1")
	s := &session{router: router}
	s.login(t)
	s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)
	s.do(t, http.MethodPost, "/admin/add-student", `{"student_id":"s001","name":"Ada"}`)

	w := s.do(t, http.MethodPost, "/api/experiments/stop", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/call", `{"student_id":"s001","func_name":"square","args":[7],"experiment_name":"e1"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	expCtx, ok := manager.Get("e1")
	require.True(t, ok)
	rows, err := expCtx.Storage.FetchLogs(fetchAll())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStopInvalidatesAdminSession(t *testing.T) {
	router, _, _ := newTestServer(t, "e1")
	s := &session{router: router}
	s.login(t)
	s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)

	w := s.do(t, http.MethodGet, "/admin/ping", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/experiments/stop", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/admin/ping", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStartConflictLeavesActiveUnchanged(t *testing.T) {
	router, _, gate := newTestServer(t, "e1", "e2")
	s := &session{router: router}
	s.login(t)
	s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)

	w := s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e2"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "'e1' is already active")

	active, ok := gate.Active()
	require.True(t, ok)
	assert.Equal(t, "e1", active)
}

func TestNamespacedSurfaceGating(t *testing.T) {
	router, _, _ := newTestServer(t, "e1", "e2")
	s := &session{router: router}
	s.login(t)
	s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)

	t.Run("active experiment serves functions", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/exp/e1/functions", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "square")
	})

	t.Run("inactive experiment is gated", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/exp/e2/functions", "")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "'e1' is active")
	})

	t.Run("unmounted experiment is 404", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/exp/ghost/call", `{"student_id":"s001","func_name":"square"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRootCallRequiresExperimentName(t *testing.T) {
	router, _, _ := newTestServer(t, "e1")
	s := &session{router: router}
	s.login(t)
	s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)
	s.do(t, http.MethodPost, "/admin/add-student", `{"student_id":"s001","name":"Ada"}`)

	w := s.do(t, http.MethodPost, "/call", `{"student_id":"s001","func_name":"square","args":[7]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Missing experiment_name")
}

func TestHealthAndDiscovery(t *testing.T) {
	router, _, _ := newTestServer(t, "e1")
	s := &session{router: router}

	w := s.do(t, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"active":null,"version":"0.1.0"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/experiments", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["e1"]`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/active-experiment", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active":null}`, w.Body.String())
}

func TestNoExperimentsRoot503(t *testing.T) {
	router, _, gate := newTestServer(t)
	require.NoError(t, gate.Start("phantom"))
	s := &session{router: router}

	w := s.do(t, http.MethodGet, "/functions", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "No experiments available")
}

func TestStartPermissions(t *testing.T) {
	router, _, _ := newTestServer(t, "e1")
	s := &session{router: router}

	w := s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"e1"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.login(t)
	w = s.do(t, http.MethodPost, "/api/experiments/start", `{"name":"missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Experiment 'missing' not found")
}
