package httpapi

import (
	"net/http"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/bounds"
	"github.com/GrainArc/geofeatured/internal/geocodec"
	"github.com/GrainArc/geofeatured/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
)

func (s *Server) boundsList(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	names, err := bounds.List(ctx, s.Pool.Replica())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (s *Server) boundsPut(c *gin.Context) {
	name := c.Param("name")
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindMalformedInput, "failed to read request body", err))
		return
	}
	gf, err := geojson.UnmarshalFeature(body)
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindMalformedInput, "invalid GeoJSON Feature", err))
		return
	}
	if err := geocodec.Validate(gf.Geometry); err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := bounds.Put(ctx, s.Pool.Write, name, gf.Geometry); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name})
}

func (s *Server) boundsDelete(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := bounds.Delete(ctx, s.Pool.Write, c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("name")})
}

func (s *Server) boundsStats(c *gin.Context) {
	ctx, cancel := requestCtx(c)
	defer cancel()
	st, err := bounds.GetStats(ctx, s.Pool.Replica(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) boundsExport(c *gin.Context) {
	if c.Query("format") == "geometry" {
		ctx, cancel := requestCtx(c)
		defer cancel()
		r, err := bounds.Get(ctx, s.Pool.Replica(), c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, r)
		return
	}

	ctx, cancel := requestCtx(c)
	defer cancel()
	if _, err := bounds.Get(ctx, s.Pool.Replica(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/x-ldjson")
	sw := stream.NewWriter(c.Writer)
	_ = stream.BoundsExport(ctx, s.Pool.Replica(), sw, c.Param("name"))
}
