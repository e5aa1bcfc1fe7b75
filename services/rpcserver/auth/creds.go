// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth resolves admin credentials for an experiment and verifies
// login attempts against them.
//
// # Resolution Order
//
//  1. ADMIN_USERNAME + ADMIN_PASSWORD environment variables, hashed
//     in-memory for the process lifetime.
//  2. The experiment's admin_credentials.json. A legacy plaintext record
//     ({"username": ..., "password": ...}) is hashed on load and flagged
//     for migration; MigrateFile rewrites it as a salted-hash record.
//  3. A hard-coded weak default (admin/password), announced with a loud
//     warning so it is never used silently.
//
// # Hashing
//
// PBKDF2-SHA256 with a per-record random salt. Records carry their own
// algorithm tag and iteration count, so raising the default iteration
// count later keeps old records verifiable. Verification compares derived
// keys in constant time.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// AlgorithmPBKDF2SHA256 tags hashed records.
	AlgorithmPBKDF2SHA256 = "pbkdf2_sha256"

	// DefaultIterations is the PBKDF2 iteration count for new records.
	DefaultIterations = 120_000

	saltBytes = 16
	keyBytes  = 32
)

// Record is a salted password verifier. The iteration count travels with
// the record so it stays verifiable after the default changes.
type Record struct {
	Algorithm  string `json:"algorithm"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Hash       string `json:"hash"`
}

// HashPassword derives a new Record with a fresh random salt.
func HashPassword(password string, iterations int) (Record, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return Record{}, fmt.Errorf("generating salt: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, keyBytes, sha256.New)
	return Record{
		Algorithm:  AlgorithmPBKDF2SHA256,
		Iterations: iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Hash:       base64.StdEncoding.EncodeToString(key),
	}, nil
}

// Verify derives a key from password using the record's own parameters and
// compares it to the stored hash in constant time.
func (r Record) Verify(password string) bool {
	if r.Algorithm != AlgorithmPBKDF2SHA256 || r.Iterations <= 0 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(r.Salt)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(r.Hash)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, r.Iterations, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Credentials is the resolved admin identity for one experiment.
type Credentials struct {
	Username string
	record   Record

	path           string
	needsMigration bool
}

// Verify checks a login attempt.
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) == 1
	passOK := c.record.Verify(password)
	return userOK && passOK
}

// NeedsMigration reports whether the on-disk record is legacy plaintext.
func (c *Credentials) NeedsMigration() bool { return c.needsMigration }

// credsFile is the on-disk shape. Legacy records carry username/password;
// hashed records carry username plus the Record fields.
type credsFile struct {
	Username string `json:"username,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Pass     string `json:"pass,omitempty"`

	Algorithm  string `json:"algorithm,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Salt       string `json:"salt,omitempty"`
	Hash       string `json:"hash,omitempty"`
}

// Load resolves credentials for the record at path per the package's
// resolution order. It never fails hard: an unreadable or malformed file
// falls through to the weak default, with a warning.
func Load(path string) *Credentials {
	if envUser, envPass := os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD"); envUser != "" && envPass != "" {
		rec, err := HashPassword(envPass, DefaultIterations)
		if err == nil {
			slog.Info("admin credentials loaded from environment")
			return &Credentials{Username: envUser, record: rec, path: path}
		}
		slog.Warn("could not hash environment credentials, falling through", "error", err)
	}

	if creds := loadFile(path); creds != nil {
		return creds
	}

	slog.Warn("using default development credentials (admin/password) - change for production!",
		"path", path)
	rec, err := HashPassword("password", DefaultIterations)
	if err != nil {
		// rand.Read failing means the process is in serious trouble anyway.
		panic(fmt.Sprintf("auth: cannot hash default credentials: %v", err))
	}
	return &Credentials{Username: "admin", record: rec, path: path}
}

func loadFile(path string) *Credentials {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var f credsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		slog.Warn("unparseable admin credentials file, ignoring", "path", path, "error", err)
		return nil
	}

	username := f.Username
	if username == "" {
		username = f.User
	}
	if username == "" {
		return nil
	}

	if f.Algorithm != "" {
		return &Credentials{
			Username: username,
			record: Record{
				Algorithm:  f.Algorithm,
				Iterations: f.Iterations,
				Salt:       f.Salt,
				Hash:       f.Hash,
			},
			path: path,
		}
	}

	password := f.Password
	if password == "" {
		password = f.Pass
	}
	if password == "" {
		return nil
	}

	rec, err := HashPassword(password, DefaultIterations)
	if err != nil {
		slog.Warn("could not hash legacy credentials", "path", path, "error", err)
		return nil
	}
	slog.Warn("admin credentials file holds a plaintext password; migration pending", "path", path)
	return &Credentials{Username: username, record: rec, path: path, needsMigration: true}
}

// MigrateFile rewrites a legacy plaintext credentials file as a salted-hash
// record. Called once at startup, separate from the read path. Failure is
// non-fatal for the caller: the in-memory hash still works and migration
// re-runs next start.
func (c *Credentials) MigrateFile() error {
	if !c.needsMigration {
		return nil
	}
	out, err := json.MarshalIndent(credsFile{
		Username:   c.Username,
		Algorithm:  c.record.Algorithm,
		Iterations: c.record.Iterations,
		Salt:       c.record.Salt,
		Hash:       c.record.Hash,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, out, 0o600); err != nil {
		return fmt.Errorf("writing hashed credentials to %s: %w", c.path, err)
	}
	c.needsMigration = false
	slog.Info("migrated plaintext admin credentials to salted hash", "path", c.path)
	return nil
}
