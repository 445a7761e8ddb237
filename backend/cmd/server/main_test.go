package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"conversai/backend/internal/agent"
	"conversai/backend/internal/store"
	"conversai/backend/pkg/config"
	"conversai/backend/pkg/logger"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := agent.NewService(st, nil, config.DefaultMemoryConfig())
	return newRouter(svc, logger.Get())
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "ok", response["status"])
}

func TestMessageEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"message": "My name is Clemens"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/memory/u1/message", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Stored int      `json:"stored"`
		Facts  []string `json:"facts"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Stored)
	assert.Contains(t, response.Facts[0], "Clemens")
}

func TestMessageEndpoint_InvalidRequest(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/memory/u1/message", bytes.NewBuffer([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryEndpoint(t *testing.T) {
	router := newTestRouter(t)

	// Store a fact first
	body := []byte(`{"message": "My name is Clemens"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/memory/u1/message", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Then ask about it
	body = []byte(`{"query": "What's my name?"}`)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/memory/u1/query", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Context string `json:"context"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response.Context, "Clemens")
}

func TestQueryEndpoint_InvalidRequest(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/memory/u1/query", bytes.NewBuffer([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCategoriesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"message": "I have a dog named Rex"}`)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/memory/u1/message", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/memory/u1/categories", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response struct {
		Categories []struct {
			Name      string `json:"name"`
			FactCount int    `json:"fact_count"`
		} `json:"categories"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))

	names := make(map[string]int)
	for _, c := range response.Categories {
		names[c.Name] = c.FactCount
	}
	assert.Equal(t, 1, names["Living Situation & Environment"])
}

func TestEvolutionEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/memory/u1/evolution", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
