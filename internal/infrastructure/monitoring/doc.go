/*
Package monitoring provides Prometheus metrics for the Shiny host.

# Overview

Metrics track the control API and the supervised runtime: start attempts by
outcome, time to ready, runtime output volume, whether a runtime is running,
and event stream fan-out. Metrics implements the recorder interface of the
shiny package, so the supervisor reports into it directly.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	sup, err := shiny.New(cfg, shiny.WithMetrics(metrics))

Each Metrics value registers on the registry it is given, so tests create a
fresh registry instead of touching the global default.
*/
package monitoring
