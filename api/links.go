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

	"github.com/blnkfinance/recon/api/middleware"
	model2 "github.com/blnkfinance/recon/api/model"
	"github.com/blnkfinance/recon/model"
	"github.com/gin-gonic/gin"
)

// ActorHeader identifies the operator on requests without a body.
const ActorHeader = middleware.ActorHeader

// ManualLink links a line to an operator-chosen entity.
func (a Api) ManualLink(c *gin.Context) {
	var req model2.CreateLink
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateLink(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	link, err := a.recon.ManualLink(c.Request.Context(), req.ToManualLinkRequest())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (a Api) GetLink(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.GetLink(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Unlink deletes a link. The actor comes from the X-Recon-Actor header.
func (a Api) Unlink(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	link, err := a.recon.Unlink(c.Request.Context(), id, c.GetHeader(ActorHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (a Api) LinksForLine(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.LinksForLine(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) LinksForEntity(c *gin.Context) {
	family, ok := requiredParam(c, "family")
	if !ok {
		return
	}
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.LinksForEntity(c.Request.Context(), model.Family(family), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// FindCandidates lists the matchable entities of a family. include_inactive
// and include_linked widen the default filter.
func (a Api) FindCandidates(c *gin.Context) {
	family, ok := requiredParam(c, "family")
	if !ok {
		return
	}
	var filter model.CandidateFilter
	for name, dst := range map[string]*bool{
		"include_inactive": &filter.IncludeInactive,
		"include_linked":   &filter.IncludeLinked,
	} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a boolean"})
			return
		}
		*dst = parsed
	}

	resp, err := a.recon.FindCandidates(c.Request.Context(), model.Family(family), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// OffsetCreditNotes nets credit notes against an invoice. An imbalance is
// returned as a warning on the offset, not as an error.
func (a Api) OffsetCreditNotes(c *gin.Context) {
	var req model2.CreateOffset
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCreateOffset(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	offset, err := a.recon.OffsetCreditNotes(c.Request.Context(), req.TargetInvoiceID, req.CreditNoteIDs, req.Actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offset)
}

func (a Api) GetOffset(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.GetOffset(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) DeleteOffset(c *gin.Context) {
	id, ok := requiredParam(c, "id")
	if !ok {
		return
	}
	resp, err := a.recon.DeleteOffset(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
