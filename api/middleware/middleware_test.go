/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blnkfinance/recon/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/wacul/ptr"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/rules", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestSecretKeyAuthMiddleware(t *testing.T) {
	router := newRouter(SecretKeyAuthMiddleware("master-key"))

	tests := []struct {
		name         string
		path         string
		key          string
		expectedCode int
	}{
		{name: "valid key", path: "/rules", key: "master-key", expectedCode: http.StatusOK},
		{name: "missing key", path: "/rules", expectedCode: http.StatusUnauthorized},
		{name: "wrong key", path: "/rules", key: "guess", expectedCode: http.StatusUnauthorized},
		{name: "health route is open", path: "/", expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(KeyHeader, tt.key)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			assert.Equal(t, tt.expectedCode, resp.Code)
		})
	}
}

func TestSecretKeyAuthMiddleware_NoSecretConfigured(t *testing.T) {
	router := newRouter(SecretKeyAuthMiddleware(""))

	req := httptest.NewRequest(http.MethodGet, "/rules", nil)
	req.Header.Set(KeyHeader, "anything")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{
		RequestsPerSecond:  ptr.Float64(1),
		Burst:              ptr.Int(2),
		CleanupIntervalSec: ptr.Int(60),
	}}
	router := newRouter(RateLimitMiddleware(conf))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/rules", nil))
		codes = append(codes, resp.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitMiddleware_PerActor(t *testing.T) {
	conf := &config.Configuration{RateLimit: config.RateLimitConfig{
		RequestsPerSecond: ptr.Float64(1),
		Burst:             ptr.Int(1),
	}}
	router := newRouter(RateLimitMiddleware(conf))

	send := func(actor string) int {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		if actor != "" {
			req.Header.Set(ActorHeader, actor)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp.Code
	}

	assert.Equal(t, http.StatusOK, send("alice"))
	assert.Equal(t, http.StatusTooManyRequests, send("alice"))
	assert.Equal(t, http.StatusOK, send("bob"), "another operator has its own bucket")
	assert.Equal(t, http.StatusOK, send(""), "anonymous requests are keyed by address")
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	router := newRouter(RateLimitMiddleware(&config.Configuration{}))
	for i := 0; i < 5; i++ {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/rules", nil))
		assert.Equal(t, http.StatusOK, resp.Code)
	}
}
