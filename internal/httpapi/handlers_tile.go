package httpapi

import (
	"net/http"
	"strconv"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/tile"
	"github.com/gin-gonic/gin"
)

func parseTileKey(c *gin.Context) (tile.Key, error) {
	z, errZ := strconv.Atoi(c.Param("z"))
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errZ != nil || errX != nil || errY != nil {
		return tile.Key{}, apperr.New(apperr.KindMalformedInput, "z/x/y must be integers")
	}
	return tile.Key{Z: z, X: x, Y: y}, nil
}

func (s *Server) tileGet(c *gin.Context) {
	k, err := parseTileKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	mvt, err := s.Tiles.Get(ctx, k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/vnd.mapbox-vector-tile", mvt)
}

func (s *Server) tileRegen(c *gin.Context) {
	k, err := parseTileKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	mvt, err := s.Tiles.Regenerate(ctx, k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/vnd.mapbox-vector-tile", mvt)
}

func (s *Server) tileMeta(c *gin.Context) {
	k, err := parseTileKey(c)
	if err != nil {
		writeError(c, err)
		return
	}
	meta, ok := s.Tiles.Cache.Meta(k)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"key": tile.MetaKey(k), "cached": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"key":           tile.MetaKey(k),
		"cached":        true,
		"extent":        tile.Extent,
		"layers":        meta.Layers,
		"feature_count": meta.FeatureCount,
	})
}

func (s *Server) tileDeleteAll(c *gin.Context) {
	s.Tiles.Cache.InvalidateAll()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}
