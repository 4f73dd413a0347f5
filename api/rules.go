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
	"strconv"

	"github.com/blnkfinance/recon/model"
	"github.com/gin-gonic/gin"
)

// CreateRule binds the rule type first so the condition decodes into the
// matching variant.
func (a Api) CreateRule(c *gin.Context) {
	var rule model.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	created, err := a.recon.CreateRule(c.Request.Context(), rule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a Api) GetRule(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.GetRule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListRules accepts ?active=true to list the active set only.
func (a Api) ListRules(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active must be a boolean"})
			return
		}
		activeOnly = parsed
	}

	resp, err := a.recon.ListRules(c.Request.Context(), activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateRule(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	var rule model.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	updated, err := a.recon.UpdateRule(c.Request.Context(), id, rule)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a Api) ActivateRule(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.ActivateRule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DeactivateRule disables a rule; links it already produced are kept.
func (a Api) DeactivateRule(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.DeactivateRule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
