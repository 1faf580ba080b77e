package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func newServerRouter(h http.HandlerFunc) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/things/{id}", h).Methods(http.MethodGet)
	router.Use(recoveryMiddleware)
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)
	router.Use(metricsMiddleware)
	return router
}

func TestRecoveryMiddleware_PanicBecomes500(t *testing.T) {
	router := newServerRouter(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	router := newServerRouter(func(w http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/1", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/things/1", nil)
	req.Header.Set(requestIDHeader, "caller-id")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", seen)
	assert.Equal(t, "caller-id", rec.Header().Get(requestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	handler := corsMiddleware("https://shop.example")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/login", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestServerHandler_PreflightReachesPatchRoutes(t *testing.T) {
	called := false
	router := mux.NewRouter()
	router.HandleFunc("/change-password", func(w http.ResponseWriter, r *http.Request) {
		called = true
	}).Methods(http.MethodPatch)
	router.Use(recoveryMiddleware)
	handler := newServerHandler(router, "https://shop.example")

	req := httptest.NewRequest(http.MethodOptions, "/change-password", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	// actual requests carry the header too
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/change-password", nil))
	assert.True(t, called)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Same(t, rw, wrapResponseWriter(rw))
}
