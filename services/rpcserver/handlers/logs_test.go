// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classlab/services/rpcserver/dispatch"
	"github.com/AleutianAI/classlab/services/rpcserver/experiment"
	"github.com/AleutianAI/classlab/services/rpcserver/registry"
	"github.com/AleutianAI/classlab/services/rpcserver/state"
	"github.com/AleutianAI/classlab/services/rpcserver/storage"
)

// newLogsRouter builds a bare router exposing only the Logs handler over
// an in-memory experiment seeded with a few rows.
func newLogsRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	funcsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(funcsDir, "functions.hcl"), []byte(`
function "identity" {
  params = ["x"]
  body   = x
}
`), 0o644))
	reg, err := registry.NewStore(funcsDir)
	require.NoError(t, err)

	db, err := storage.Open(storage.InMemoryOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	seed := []struct {
		student, trial string
	}{
		{"s001", "t1"},
		{"s001", "t2"},
		{"s002", "t1"},
	}
	for _, row := range seed {
		require.NoError(t, db.LogEvent(row.student, "e1", row.trial, "identity",
			json.RawMessage(`[1]`), json.RawMessage(`1`), nil))
	}

	expCtx := &experiment.Context{Name: "e1", Registry: reg, Storage: db}
	env := &Env{
		Gate:       state.New(),
		Dispatcher: &dispatch.Dispatcher{Gate: state.New()},
	}
	resolve := func(c *gin.Context) (*experiment.Context, bool) { return expCtx, true }

	router := gin.New()
	router.GET("/logs", Logs(env, resolve))
	return router
}

func getLogs(t *testing.T, router *gin.Engine, query string) (*httptest.ResponseRecorder, []map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/logs"+query, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body struct {
		Logs []map[string]any `json:"logs"`
	}
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body.Logs
}

func TestLogsQueryAliases(t *testing.T) {
	router := newLogsRouter(t)

	t.Run("sid aliases student_id", func(t *testing.T) {
		_, byAlias := getLogs(t, router, "?sid=s001")
		_, byCanonical := getLogs(t, router, "?student_id=s001")
		assert.Len(t, byAlias, 2)
		assert.Equal(t, len(byCanonical), len(byAlias))
	})

	t.Run("trial aliases resolve in precedence order", func(t *testing.T) {
		for _, key := range []string{"trial", "trial_name", "experiment_name", "exp"} {
			_, rows := getLogs(t, router, "?"+key+"=t1")
			assert.Len(t, rows, 2, key)
		}
	})

	t.Run("trial wins over experiment_name when both sent", func(t *testing.T) {
		_, rows := getLogs(t, router, "?trial=t2&experiment_name=t1")
		assert.Len(t, rows, 1)
	})

	t.Run("filters AND together", func(t *testing.T) {
		_, rows := getLogs(t, router, "?student_id=s001&trial=t1")
		assert.Len(t, rows, 1)
	})
}

func TestLogsQueryBounds(t *testing.T) {
	router := newLogsRouter(t)

	t.Run("n over API ceiling rejected", func(t *testing.T) {
		w, _ := getLogs(t, router, "?n=5000")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("n zero rejected", func(t *testing.T) {
		w, _ := getLogs(t, router, "?n=0")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad order rejected", func(t *testing.T) {
		w, _ := getLogs(t, router, "?order=sideways")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad start_time rejected", func(t *testing.T) {
		w, _ := getLogs(t, router, "?start_time=yesterday")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("n limits rows", func(t *testing.T) {
		w, rows := getLogs(t, router, "?n=2")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, rows, 2)
	})
}
