package httpapi

import (
	"net/http"
	"strconv"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/osmshim"
	"github.com/GrainArc/geofeatured/internal/webhook"
	"github.com/gin-gonic/gin"
)

const diffResultXML = `<?xml version="1.0" encoding="UTF-8"?><diffResult version="0.6" generator="geofeatured"/>`

func (s *Server) osmCapabilities(c *gin.Context) {
	c.Data(http.StatusOK, "application/xml", []byte(osmshim.Capabilities))
}

func (s *Server) osmChangesetCreate(c *gin.Context) {
	id := s.Changesets.Create()
	c.Data(http.StatusOK, "text/plain", []byte(strconv.FormatInt(id, 10)))
}

func (s *Server) osmChangesetUpload(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.New(apperr.KindMalformedInput, "changeset id must be an integer"))
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindMalformedInput, "failed to read request body", err))
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	result, err := osmshim.Upload(ctx, s.Engine, s.Changesets, id, c.Query("comment"), body, requestUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	if s.Hooks != nil {
		s.Hooks.Fire(webhook.Event{DeltaID: result.DeltaID, UserID: requestUserID(c), Message: c.Query("comment")})
	}

	c.Data(http.StatusOK, "application/xml", []byte(diffResultXML))
}

func (s *Server) osmChangesetClose(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.New(apperr.KindMalformedInput, "changeset id must be an integer"))
		return
	}
	if err := s.Changesets.Close(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) osmMap(c *gin.Context) {
	bbox := c.Query("bbox")
	if bbox == "" {
		writeError(c, apperr.New(apperr.KindMalformedInput, "bbox query parameter is required"))
		return
	}
	b, err := parseBBox(bbox)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	xmlBytes, err := osmshim.Map(ctx, s.Pool.Replica(), b)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/xml", xmlBytes)
}
