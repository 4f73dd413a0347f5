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

package api

import (
	"net/http"

	"github.com/blnkfinance/recon"
	"github.com/blnkfinance/recon/api/middleware"
	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	recon  *recon.Recon
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/statements", a.RecordStatement)
	router.GET("/statements/:id", a.GetStatement)
	router.GET("/statements/:id/lines", a.GetStatementLines)
	router.POST("/statements/:id/process", a.ProcessStatement)
	router.GET("/statements/:id/status", a.StatementStatus)
	router.GET("/statements/:id/links", a.LinksForStatement)
	router.GET("/statements/:id/events", a.LinkEvents)
	router.GET("/statements/:id/runs", a.RunsForStatement)

	router.GET("/lines/:id/suggestions", a.Suggest)
	router.GET("/lines/:id/links", a.LinksForLine)

	router.POST("/rules", a.CreateRule)
	router.GET("/rules", a.ListRules)
	router.GET("/rules/:id", a.GetRule)
	router.PUT("/rules/:id", a.UpdateRule)
	router.POST("/rules/:id/activate", a.ActivateRule)
	router.POST("/rules/:id/deactivate", a.DeactivateRule)

	router.POST("/links", a.ManualLink)
	router.GET("/links/:id", a.GetLink)
	router.DELETE("/links/:id", a.Unlink)

	router.GET("/entities/:family", a.FindCandidates)
	router.GET("/entities/:family/:id/links", a.LinksForEntity)

	router.POST("/offsets", a.OffsetCreditNotes)
	router.GET("/offsets/:id", a.GetOffset)
	router.DELETE("/offsets/:id", a.DeleteOffset)

	router.GET("/runs/:id", a.GetRun)
	return a.router
}

func NewAPI(r *recon.Recon) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(conf.Tracing.ServiceName))
	router.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		router.Use(middleware.SecretKeyAuthMiddleware(conf.Server.SecretKey))
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{recon: r, router: router}
}

// respondError writes err with the HTTP status of its error code.
func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

func requiredParam(c *gin.Context, name string) (string, bool) {
	value, passed := c.Params.Get(name)
	if !passed || value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass " + name + " in the route /:" + name})
		return "", false
	}
	return value, true
}
