// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"7", "7"},
		{"3.14", "3.14"},
		{"true", "true"},
		{"[1,2]", "[1,2]"},
		{`"quoted"`, `"quoted"`},
		{"Ada", `"Ada"`},
		{"not json at all", `"not json at all"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(parseArg(tt.token)), tt.token)
	}
}

func TestReadRosterCSV(t *testing.T) {
	t.Run("columns in any order", func(t *testing.T) {
		input := "name,email,student_id\nAda Lovelace,ada@example.edu,s001\nCharles Babbage,,s002\n"
		students, err := readRosterCSV(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, students, 2)
		assert.Equal(t, "s001", students[0].StudentID)
		assert.Equal(t, "Ada Lovelace", students[0].Name)
		assert.Equal(t, "ada@example.edu", students[0].Email)
		assert.Empty(t, students[1].Email)
	})

	t.Run("missing required column", func(t *testing.T) {
		_, err := readRosterCSV(strings.NewReader("name,email\nAda,ada@example.edu\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "student_id")
	})
}

func TestClientCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/call", r.URL.Path)

		var req datatypes.CallRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "square", req.FuncName)
		assert.Equal(t, "s001", req.StudentID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": 49}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	require.NoError(t, err)

	result, err := client.Call(context.Background(), &datatypes.CallRequest{
		StudentID: "s001",
		FuncName:  "square",
		Args:      []json.RawMessage{json.RawMessage("7")},
	})
	require.NoError(t, err)
	assert.JSONEq(t, "49", string(result))
}

func TestClientExperimentScope(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "lab1")
	require.NoError(t, err)

	_, err = client.Functions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/exp/lab1/functions", gotPath)
}

func TestClientErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail": "No active experiment. Start one from the landing page."}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "")
	require.NoError(t, err)

	_, err = client.Functions(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "No active experiment")
}

func TestClientSessionCookieCarriesAcrossCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "classlab_session", Value: "session-token", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": "Login successful"}`))
	})
	mux.HandleFunc("/admin/add-student", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("classlab_session")
		if err != nil || cookie.Value != "session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail": "Not authenticated"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient(server.URL, "")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Login(ctx, "admin", "pw"))
	require.NoError(t, client.AddStudent(ctx, "s001", "Ada", ""))
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient("not-a-url", "")
	require.Error(t, err)
}
