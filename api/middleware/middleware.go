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
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/blnkfinance/recon/config"
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// KeyHeader carries the shared secret when the server runs in secure mode.
	KeyHeader = "X-Recon-Key"
	// ActorHeader names the operator behind a request.
	ActorHeader = "X-Recon-Actor"
)

// RateLimitMiddleware throttles each operator separately. Requests without
// an actor header share a bucket per client address. A nil rate or burst
// turns limiting off.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	rl := conf.RateLimit
	if rl.RequestsPerSecond == nil || rl.Burst == nil {
		return func(c *gin.Context) { c.Next() }
	}

	ttl := 10 * time.Minute
	if rl.CleanupIntervalSec != nil {
		ttl = time.Duration(*rl.CleanupIntervalSec) * time.Second
	}
	lmt := tollbooth.NewLimiter(*rl.RequestsPerSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: ttl})
	lmt.SetBurst(*rl.Burst)

	return func(c *gin.Context) {
		key := limitKey(c)
		if httpError := tollbooth.LimitByKeys(lmt, []string{key}); httpError != nil {
			logrus.WithField("key", key).Warn("rate limit reached")
			c.AbortWithStatusJSON(httpError.StatusCode, gin.H{"error": httpError.Message})
			return
		}
		c.Next()
	}
}

func limitKey(c *gin.Context) string {
	if actor := strings.TrimSpace(c.GetHeader(ActorHeader)); actor != "" {
		return "actor:" + actor
	}
	return "ip:" + c.ClientIP()
}

// SecretKeyAuthMiddleware rejects requests whose X-Recon-Key does not match
// secretKey. The root health route stays open.
func SecretKeyAuthMiddleware(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/" {
			c.Next()
			return
		}
		if secretKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Secret key is not configured"})
			return
		}

		clientSecret := c.GetHeader(KeyHeader)
		if clientSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing secret key"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(secretKey), []byte(clientSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid secret key"})
			return
		}
		c.Next()
	}
}
