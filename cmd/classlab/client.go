// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/classlab/services/rpcserver/datatypes"
)

// =============================================================================
// API Client
// =============================================================================

// APIError is a non-2xx response from the server, carrying the detail
// string the server put in the body.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

// Client talks to one classlab server, optionally scoped to a namespaced
// experiment. The cookie jar carries the admin session across calls, so a
// single process can login once and then issue admin requests.
type Client struct {
	base string
	exp  string
	http *http.Client
}

// NewClient builds a client for the server at base. A non-empty exp scopes
// experiment-level requests to /exp/<exp>/ instead of the root surface.
func NewClient(base, exp string) (*Client, error) {
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", base)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		exp:  exp,
		http: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

// expURL resolves a path on the experiment surface (root or /exp/<name>).
func (c *Client) expURL(path string) string {
	if c.exp != "" {
		return c.base + "/exp/" + c.exp + path
	}
	return c.base + path
}

// rootURL resolves a path on the landing surface, which has no namespaced
// variant.
func (c *Client) rootURL(path string) string {
	return c.base + path
}

func (c *Client) doJSON(ctx context.Context, method, rawURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(payload, &detail) == nil && detail.Detail != "" {
			return &APIError{Status: resp.StatusCode, Detail: detail.Detail}
		}
		return &APIError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(payload))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}

// =============================================================================
// Experiment Surface
// =============================================================================

// Login opens an admin session. The session cookie lives in the client's
// jar afterwards.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := datatypes.LoginRequest{Username: username, Password: password}
	return c.doJSON(ctx, http.MethodPost, c.expURL("/admin/login"), body, nil)
}

// Functions lists the experiment's callable functions.
func (c *Client) Functions(ctx context.Context) (map[string]datatypes.FunctionInfo, error) {
	out := make(map[string]datatypes.FunctionInfo)
	if err := c.doJSON(ctx, http.MethodGet, c.expURL("/functions"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Call invokes a function and returns the raw JSON result.
func (c *Client) Call(ctx context.Context, req *datatypes.CallRequest) (json.RawMessage, error) {
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.expURL("/call"), req, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// LogsQuery carries the optional filters of GET /logs.
type LogsQuery struct {
	StudentID string
	Trial     string
	N         int
	Order     string
}

// Logs fetches log rows with the given filters.
func (c *Client) Logs(ctx context.Context, q LogsQuery) ([]datatypes.LogRow, error) {
	params := url.Values{}
	if q.StudentID != "" {
		params.Set("student_id", q.StudentID)
	}
	if q.Trial != "" {
		params.Set("trial", q.Trial)
	}
	if q.N > 0 {
		params.Set("n", fmt.Sprint(q.N))
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	target := c.expURL("/logs")
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}

	var out struct {
		Logs []datatypes.LogRow `json:"logs"`
	}
	if err := c.doJSON(ctx, http.MethodGet, target, nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// IsRegistered probes the roster for a student id.
func (c *Client) IsRegistered(ctx context.Context, studentID string) (bool, error) {
	var out struct {
		Registered bool `json:"registered"`
	}
	target := c.expURL("/is-registered") + "?student_id=" + url.QueryEscape(studentID)
	if err := c.doJSON(ctx, http.MethodGet, target, nil, &out); err != nil {
		return false, err
	}
	return out.Registered, nil
}

// AddStudent registers one student. Requires a prior Login.
func (c *Client) AddStudent(ctx context.Context, id, name, email string) error {
	body := datatypes.AddStudentRequest{StudentID: id, Name: name, Email: email}
	return c.doJSON(ctx, http.MethodPost, c.expURL("/admin/add-student"), body, nil)
}

// BulkAddStudents imports a roster batch. Requires a prior Login.
func (c *Client) BulkAddStudents(ctx context.Context, students []datatypes.AddStudentRequest) (*datatypes.BulkAddReport, error) {
	body := datatypes.BulkAddRequest{Students: students}
	var report datatypes.BulkAddReport
	if err := c.doJSON(ctx, http.MethodPost, c.expURL("/admin/add-students-bulk"), body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// =============================================================================
// Landing Surface
// =============================================================================

// Experiments lists the experiment directories known to the server.
func (c *Client) Experiments(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.doJSON(ctx, http.MethodGet, c.rootURL("/api/experiments"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveExperiment returns the active experiment name ("" if none).
func (c *Client) ActiveExperiment(ctx context.Context) (string, error) {
	var out struct {
		Active *string `json:"active"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.rootURL("/api/active-experiment"), nil, &out); err != nil {
		return "", err
	}
	if out.Active == nil {
		return "", nil
	}
	return *out.Active, nil
}

// StartExperiment activates an experiment. Requires a root admin session.
func (c *Client) StartExperiment(ctx context.Context, name string) error {
	body := datatypes.StartExperimentRequest{Name: name}
	return c.doJSON(ctx, http.MethodPost, c.rootURL("/api/experiments/start"), body, nil)
}

// StopExperiment deactivates the active experiment. Requires a root admin
// session.
func (c *Client) StopExperiment(ctx context.Context) (string, error) {
	var out struct {
		Stopped string `json:"stopped"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.rootURL("/api/experiments/stop"), nil, &out); err != nil {
		return "", err
	}
	return out.Stopped, nil
}
