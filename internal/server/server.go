// Package server exposes the Trigger API named in §6: the HTTP surface
// through which an external scheduler-of-schedulers or UI kicks off,
// lists, and cancels crawl batches. Everything else the teacher's
// server package carried (auth, topic CRUD, budget/plan/memory
// endpoints) belongs to the multi-tenant SaaS surface spec.md scopes
// out as an external collaborator.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/policywatch/collector/internal/scheduler"
	"github.com/policywatch/collector/internal/store"
)

// New builds the echo server hosting the Trigger API, /healthz, and
// /metrics, grounded on the teacher's Run's error-handler/CORS/health
// wiring in internal/server/server.go.
func New(sched *scheduler.Scheduler, st *store.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	th := &TriggerHandler{Scheduler: sched, Store: st}
	th.Register(e.Group("/tasks"))

	return e
}

// Run starts the HTTP server; it blocks until the listener errors.
func Run(addr string, sched *scheduler.Scheduler, st *store.Store) error {
	e := New(sched, st)
	return e.Start(addr)
}
