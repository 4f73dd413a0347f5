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

	model2 "github.com/blnkfinance/recon/api/model"
	"github.com/gin-gonic/gin"
)

// RecordStatement stores a pre-parsed bank statement and its lines.
func (a Api) RecordStatement(c *gin.Context) {
	var newStatement model2.CreateStatement
	if err := c.ShouldBindJSON(&newStatement); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := newStatement.ValidateCreateStatement(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	stmt, lines := newStatement.ToStatement()
	created, storedLines, err := a.recon.RecordStatement(c.Request.Context(), stmt, lines)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"statement": created, "lines": storedLines})
}

func (a Api) GetStatement(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.GetStatement(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetStatementLines(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.GetStatementLines(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ProcessStatement reconciles a statement inline, or queues it when async
// is set. Queued runs answer 202 with the run to poll.
func (a Api) ProcessStatement(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	var req model2.ProcessStatement
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return
		}
	}

	if req.Async {
		run, err := a.recon.StartReconciliation(c.Request.Context(), id, req.ToOptions())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, run)
		return
	}

	result, err := a.recon.ProcessStatement(c.Request.Context(), id, req.ToOptions())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a Api) StatementStatus(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.StatementStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) LinksForStatement(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.LinksForStatement(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) LinkEvents(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.LinkEvents(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) RunsForStatement(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.RunsForStatement(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetRun(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Suggest returns the ranked candidates of one line for manual review.
func (a Api) Suggest(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.Suggest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
