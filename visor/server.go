// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package visor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/geocoding"
	"github.com/rs/zerolog"
)

// Server exposes the map and the workspace over HTTP. All document
// mutations go through mu.
type Server struct {
	mu         sync.Mutex
	source     clientes.Source
	doc        *clientes.Document
	workspace  Workspace
	reconciler *geocoding.Reconciler
	settings   Map
	logger     zerolog.Logger
}

// NewServer creates a server. reconciler may be nil, in which case
// POST /api/geocode is not available.
func NewServer(source clientes.Source, ws Workspace, reconciler *geocoding.Reconciler, logger zerolog.Logger) *Server {
	settings := *NewMap()
	settings.Interactive = true

	return &Server{
		source:     source,
		doc:        clientes.NewDocument(),
		workspace:  ws,
		reconciler: reconciler,
		settings:   settings,
		logger:     logger,
	}
}

// Load reads the customer list from the source into the workspace. A
// missing list starts an empty workspace.
func (s *Server) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(ctx)
}

func (s *Server) load(ctx context.Context) error {
	doc, err := s.source.Load(ctx)

	switch {
	case errors.Is(err, clientes.ErrSourceNotFound):
		s.logger.Warn().Stringer("source", s.source).Msg("customer list not found, starting empty")

		doc = clientes.NewDocument()
	case err != nil:
		return fmt.Errorf("loading %s: %w", s.source, err)
	}

	if err := s.workspace.Replace(doc.Records()); err != nil {
		return fmt.Errorf("indexing customers: %w", err)
	}

	s.doc = doc

	s.logger.Info().Stringer("source", s.source).Int("records", len(doc.Records())).Msg("customers loaded")

	return nil
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", s.mapView)
	r.GET("/api/records", s.listRecords)
	r.GET("/api/provinces", s.listProvinces)
	r.GET("/api/clusters", s.listClusters)
	r.GET("/api/marks", s.listMarks)
	r.POST("/api/marks/:name", s.mark)
	r.DELETE("/api/marks/:name", s.unmark)
	r.POST("/api/purge", s.purge)
	r.POST("/api/geocode", s.geocode)

	return r
}

// Run serves on addr until the listener fails.
func (s *Server) Run(addr string) error {
	return s.Handler().Run(addr)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}

func (s *Server) mapView(c *gin.Context) {
	var filter clientes.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	provinces, err := s.workspace.Provinces()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	marked, err := s.workspace.Marked()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	m := s.settings
	m.Provinces = provinces
	m.Marked = make(map[string]bool, len(marked))

	for _, name := range marked {
		m.Marked[name] = true
	}

	s.mu.Lock()
	records := s.doc.Records()
	s.mu.Unlock()

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)

	if err := m.Render(c.Writer, records, filter); err != nil {
		s.logger.Error().Err(err).Msg("rendering map")
	}
}

func (s *Server) listRecords(c *gin.Context) {
	var filter clientes.Filter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	customers, err := s.workspace.Search(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if customers == nil {
		customers = []*Customer{}
	}

	c.JSON(http.StatusOK, customers)
}

func (s *Server) listProvinces(c *gin.Context) {
	provinces, err := s.workspace.Provinces()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if provinces == nil {
		provinces = []string{}
	}

	c.JSON(http.StatusOK, provinces)
}

func (s *Server) listClusters(c *gin.Context) {
	res := IndexResolution

	if v := c.Query("res"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 15 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "res must be an integer between 0 and 15"})

			return
		}

		res = n
	}

	cells, err := s.workspace.CellCounts(res)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"resolution": res, "cells": cells})
}

func (s *Server) listMarks(c *gin.Context) {
	marked, err := s.workspace.Marked()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if marked == nil {
		marked = []string{}
	}

	c.JSON(http.StatusOK, marked)
}

func (s *Server) mark(c *gin.Context) {
	name := c.Param("name")

	if err := s.workspace.Mark(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownCustomer) {
			status = http.StatusNotFound
		}

		c.JSON(status, gin.H{"error": err.Error()})

		return
	}

	s.logger.Info().Str("name", name).Msg("customer marked for deletion")
	c.JSON(http.StatusOK, gin.H{"name": name, "marked": true})
}

func (s *Server) unmark(c *gin.Context) {
	name := c.Param("name")

	if err := s.workspace.Unmark(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, gin.H{"name": name, "marked": false})
}

// purge removes the marked customers from the list and persists it.
func (s *Server) purge(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := c.Request.Context()

	marked, err := s.workspace.Marked()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	if len(marked) == 0 {
		c.JSON(http.StatusOK, gin.H{"removed": 0})

		return
	}

	removed := s.doc.Remove(marked...)

	if err := s.source.Save(ctx, s.doc); err != nil {
		// the in-memory list no longer matches the stored one
		c.JSON(http.StatusInternalServerError, gin.H{"error": errors.Join(err, s.load(ctx)).Error()})

		return
	}

	for _, name := range marked {
		if err := s.workspace.Unmark(name); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

			return
		}
	}

	if err := s.workspace.Replace(s.doc.Records()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	s.logger.Info().Int("removed", removed).Strs("names", marked).Msg("marked customers purged")
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// geocode reconciles the list and persists it when something changed.
// Progress made before the client goes away is kept.
func (s *Server) geocode(c *gin.Context) {
	if s.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "geocoding is not configured"})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	report, rErr := s.reconciler.Reconcile(c.Request.Context(), s.doc.Records())

	saved := false

	if report.Changed {
		ctx := context.WithoutCancel(c.Request.Context())

		if err := s.source.Save(ctx, s.doc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("saving: %v", err)})

			return
		}

		if err := s.workspace.Replace(s.doc.Records()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

			return
		}

		saved = true
	}

	body := gin.H{
		"changed":   report.Changed,
		"saved":     saved,
		"lookups":   report.Lookups(),
		"resolved":  report.Resolved,
		"not_found": report.NotFound,
		"failed":    report.Failed,
		"cached":    report.Cached,
	}

	if rErr != nil {
		body["error"] = rErr.Error()
		c.JSON(http.StatusServiceUnavailable, body)

		return
	}

	c.JSON(http.StatusOK, body)
}
