package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/deltajournal"
	"github.com/gin-gonic/gin"
)

func (s *Server) deltasList(c *gin.Context) {
	var opts deltajournal.ListOptions

	if v := c.Query("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.Offset = n
		}
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	// start is the recent (upper) bound and end is the older (lower) bound:
	// end <= created_at <= start.
	if v := c.Query("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Until = &t
		}
	}
	if v := c.Query("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.Since = &t
		}
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	list, err := deltajournal.List(ctx, s.Pool.Replica(), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) deltaGet(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.New(apperr.KindMalformedInput, "id must be an integer"))
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	d, err := deltajournal.Get(ctx, s.Pool.Replica(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
