// Package httpapi wires the HTTP surface from spec.md §6 onto gin, this
// repo's analogue of the teacher's views.UserController plus
// routers/Geoapi.go's route grouping — one Server holding every collaborator
// instead of a package-level controller struct per resource, since the core
// components here are already isolated by package.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GrainArc/geofeatured/internal/apperr"
	"github.com/GrainArc/geofeatured/internal/authshim"
	"github.com/GrainArc/geofeatured/internal/feature"
	"github.com/GrainArc/geofeatured/internal/mutate"
	"github.com/GrainArc/geofeatured/internal/osmshim"
	"github.com/GrainArc/geofeatured/internal/pool"
	"github.com/GrainArc/geofeatured/internal/tile"
	"github.com/GrainArc/geofeatured/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

// Server holds every collaborator a handler needs.
type Server struct {
	Pool       *pool.Pool
	Engine     *mutate.Engine
	Tiles      *tile.Engine
	Changesets *osmshim.Table
	Auth       *authshim.Policy
	Hooks      *webhook.Dispatcher
}

// Router builds the gin.Engine registering every route from spec.md §6, the
// way routers/Geoapi.go groups the teacher's endpoints.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.health)
	r.GET("/api", s.serverMeta)

	data := r.Group("/api/data")
	{
		data.GET("/feature/:id/history", s.authorize("feature.read"), s.featureHistory)
		data.GET("/feature/:id", s.authorize("feature.read"), s.featureByID)
		data.GET("/feature", s.authorize("feature.read"), s.featureByKeyOrPoint)
		data.POST("/feature", s.authorize("feature.write"), s.mutateOne)
		data.GET("/features", s.authorize("feature.read"), s.featuresBBoxOrPoint)
		data.POST("/features", s.authorize("feature.write"), s.mutateMany)
		data.GET("/clone", s.authorize("feature.clone"), s.clone)
		data.GET("/query", s.authorize("feature.query"), s.sandboxQuery)
		data.GET("/bounds", s.authorize("bounds.read"), s.boundsList)
		data.POST("/bounds/:name", s.authorize("bounds.write"), s.boundsPut)
		data.DELETE("/bounds/:name", s.authorize("bounds.write"), s.boundsDelete)
		data.GET("/bounds/:name/stats", s.authorize("bounds.read"), s.boundsStats)
		data.GET("/bounds/:name", s.authorize("bounds.read"), s.boundsExport)
	}

	tiles := r.Group("/api/tiles")
	{
		tiles.GET("/:z/:x/:y/regen", s.authorize("tile.write"), s.tileRegen)
		tiles.GET("/:z/:x/:y/meta", s.authorize("tile.read"), s.tileMeta)
		tiles.GET("/:z/:x/:y", s.authorize("tile.read"), s.tileGet)
		tiles.DELETE("", s.authorize("tile.write"), s.tileDeleteAll)
	}

	r.GET("/api/deltas", s.authorize("delta.read"), s.deltasList)
	r.GET("/api/delta/:id", s.authorize("delta.read"), s.deltaGet)

	osm := r.Group("/api/0.6")
	{
		osm.GET("/capabilities", s.osmCapabilities)
		osm.PUT("/changeset/create", s.authorize("feature.write"), s.osmChangesetCreate)
		osm.POST("/changeset/:id/upload", s.authorize("feature.write"), s.osmChangesetUpload)
		osm.PUT("/changeset/:id/close", s.authorize("feature.write"), s.osmChangesetClose)
		osm.GET("/map", s.authorize("feature.read"), s.osmMap)
	}

	return r
}

// identity derives an authshim.Identity from the request headers standing in
// for a real authentication layer: X-User-Id names the caller, X-Admin
// asserts the admin bit, and a caller is considered authenticated once it
// has presented a user id at all.
func (s *Server) identity(c *gin.Context) authshim.Identity {
	uid := requestUserID(c)
	return authshim.Identity{
		UserID:        uid,
		IsAdmin:       requestIsAdmin(c),
		Authenticated: uid != 0,
	}
}

// authorize gates a route behind the scope the loaded policy assigns to op.
// With no --auth policy loaded, Auth is nil and every op defaults to public.
func (s *Server) authorize(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := s.Auth.ScopeFor(op)
		if !authshim.Allows(scope, s.identity(c), 0) {
			writeError(c, apperr.New(apperr.KindForbidden, "not authorized for '"+op+"'"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "Hello World!")
}

func (s *Server) serverMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": "0.6", "service": "geofeatured"})
}

// writeError renders err with the status its apperr.Kind maps to, following
// the gin.H{"error": ...} convention views/EdView.go and views/geoview.go
// already use throughout the teacher.
func writeError(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		c.JSON(ae.Status(), gin.H{"error": ae.Name(), "message": ae.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
}

func requestUserID(c *gin.Context) int64 {
	if v := c.GetHeader("X-User-Id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func requestIsAdmin(c *gin.Context) bool {
	return c.GetHeader("X-Admin") == "true"
}

func parseBBox(raw string) (orb.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, apperr.New(apperr.KindMalformedInput, "bbox must be minLon,minLat,maxLon,maxLat")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, apperr.New(apperr.KindMalformedInput, "bbox must be numeric")
		}
		vals[i] = v
	}
	return orb.Bound{Min: orb.Point{vals[0], vals[1]}, Max: orb.Point{vals[2], vals[3]}}, nil
}

func parsePoint(raw string) (lon, lat float64, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, apperr.New(apperr.KindMalformedInput, "point must be lng,lat")
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, apperr.New(apperr.KindMalformedInput, "point must be numeric lng,lat")
	}
	return lon, lat, nil
}

func requestCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 30*time.Second)
}

// runMutation runs the mutation through Engine and, on success, fires the
// webhook — after commit, out of the mutation transaction's boundary.
func (s *Server) runMutation(c *gin.Context, env *feature.Envelope) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	id := s.identity(c)
	adminAuthorized := authshim.Allows(authshim.ScopeAdmin, id, 0)

	result, err := s.Engine.Mutate(ctx, mutationFeatures(env), env.Message, id.UserID, adminAuthorized)
	if err != nil {
		writeError(c, err)
		return
	}

	if s.Hooks != nil {
		s.Hooks.Fire(webhook.Event{
			DeltaID: result.DeltaID,
			UserID:  id.UserID,
			Message: env.Message,
		})
	}

	c.JSON(http.StatusOK, gin.H{"delta_id": result.DeltaID})
}

func mutationFeatures(env *feature.Envelope) []feature.MutationFeature {
	if len(env.Features) > 0 {
		return env.Features
	}
	return []feature.MutationFeature{env.MutationFeature}
}

func (s *Server) mutateOne(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindMalformedInput, "failed to read request body", err))
		return
	}
	env, err := feature.ParseOne(body)
	if err != nil {
		writeError(c, err)
		return
	}
	s.runMutation(c, env)
}

func (s *Server) mutateMany(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, apperr.Wrap(apperr.KindMalformedInput, "failed to read request body", err))
		return
	}
	env, err := feature.ParseMany(body)
	if err != nil {
		writeError(c, err)
		return
	}
	s.runMutation(c, env)
}
