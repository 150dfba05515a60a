package httpapi

import (
	"net/http"
	"strconv"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/stream"
	"github.com/gin-gonic/gin"
)

func (s *Server) featureByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.New(apperr.KindMalformedInput, "id must be an integer"))
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	f, err := stream.GetByID(ctx, s.Pool.Replica(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) featureByKeyOrPoint(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	if key := c.Query("key"); key != "" {
		f, err := stream.GetByKey(ctx, s.Pool.Replica(), key)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, f)
		return
	}

	if pt := c.Query("point"); pt != "" {
		lon, lat, err := parsePoint(pt)
		if err != nil {
			writeError(c, err)
			return
		}
		f, err := stream.GetByPoint(ctx, s.Pool.Replica(), lon, lat)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, f)
		return
	}

	writeError(c, apperr.New(apperr.KindMalformedInput, "key or point query parameter is required"))
}

func (s *Server) featureHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.New(apperr.KindMalformedInput, "id must be an integer"))
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	h, err := stream.GetHistory(ctx, s.Pool.Replica(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) featuresBBoxOrPoint(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/x-ldjson")
	sw := stream.NewWriter(c.Writer)

	var err error
	switch {
	case c.Query("bbox") != "":
		bbox, perr := parseBBox(c.Query("bbox"))
		if perr != nil {
			writeError(c, perr)
			return
		}
		err = stream.BBox(ctx, s.Pool.Replica(), sw, bbox)
	case c.Query("point") != "":
		lon, lat, perr := parsePoint(c.Query("point"))
		if perr != nil {
			writeError(c, perr)
			return
		}
		err = stream.Point(ctx, s.Pool.Replica(), sw, lon, lat)
	default:
		writeError(c, apperr.New(apperr.KindMalformedInput, "bbox or point query parameter is required"))
		return
	}

	if err != nil {
		// the stream may have already started; nothing further to do —
		// the missing 0x04 terminator is itself the client's failure signal.
		return
	}
}

func (s *Server) clone(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/x-ldjson")
	sw := stream.NewWriter(c.Writer)
	_ = stream.Clone(ctx, s.Pool.Replica(), sw)
}

func (s *Server) sandboxQuery(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		writeError(c, apperr.New(apperr.KindMalformedInput, "query parameter is required"))
		return
	}
	if err := stream.ValidateSandboxSQL(query); err != nil {
		writeError(c, err)
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	db := s.Pool.Sandbox()
	if db == nil {
		writeError(c, apperr.New(apperr.KindInternal, "no sandbox pool configured"))
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/x-ldjson")
	sw := stream.NewWriter(c.Writer)
	_ = stream.Query(ctx, db, sw, query, limit)
}
