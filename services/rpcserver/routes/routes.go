// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/classlab/services/rpcserver/handlers"
	"github.com/AleutianAI/classlab/services/rpcserver/middleware"
)

// SetupRoutes wires the full HTTP surface onto router.
//
// The surface has three layers:
//
//   - landing APIs under /api: experiment discovery, health, and the
//     start/stop gate controls
//   - root routes bound to the default experiment (/call, /functions,
//     /logs, /admin/...)
//   - the same surface again under /exp/:name for each mounted experiment
//
// promGatherer serves /metrics; pass prometheus.DefaultGatherer in main.
func SetupRoutes(router *gin.Engine, env *handlers.Env, promGatherer prometheus.Gatherer) {
	requireAdmin := middleware.RequireAdmin(env.Gate)
	anyActive := middleware.RequireAnyActive(env.Gate)
	thisActive := middleware.RequireActive(env.Gate, func(c *gin.Context) string {
		return c.Param("name")
	})

	defaultExp := handlers.DefaultResolver(env)
	namedExp := handlers.NamedResolver(env)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promGatherer, promhttp.HandlerOpts{})))

	// Landing APIs.
	api := router.Group("/api")
	{
		api.GET("/experiments", handlers.ListExperiments(env))
		api.GET("/active-experiment", handlers.ActiveExperiment(env))
		api.GET("/health", handlers.Health(env))
		api.POST("/experiments/start", requireAdmin, handlers.StartExperiment(env))
		api.POST("/experiments/stop", requireAdmin, handlers.StopExperiment(env))
	}

	// Root surface, bound to the default experiment. Gated on "some
	// experiment is active" rather than pinned to the default; the
	// dispatcher enforces the exact experiment context for calls.
	router.POST("/call", handlers.Call(env, defaultExp, true))
	router.GET("/functions", anyActive, handlers.ListFunctions(env, defaultExp))
	router.GET("/logs", anyActive, handlers.Logs(env, defaultExp))
	router.GET("/log-options", anyActive, handlers.LogOptions(env, defaultExp))
	router.GET("/is-registered", anyActive, handlers.IsRegistered(env, defaultExp))
	router.GET("/students", requireAdmin, anyActive, handlers.ListStudents(env, defaultExp))

	rootAdmin := router.Group("/admin")
	{
		rootAdmin.POST("/login", handlers.Login(env, defaultExp))
		rootAdmin.POST("/logout", handlers.Logout(env))
		rootAdmin.GET("/ping", requireAdmin, handlers.Ping())
		rootAdmin.POST("/reload-functions", requireAdmin, anyActive, handlers.ReloadFunctions(env, defaultExp))

		guarded := rootAdmin.Group("", requireAdmin, anyActive)
		{
			guarded.POST("/add-student", handlers.AddStudent(env, defaultExp))
			guarded.POST("/add-students-bulk", handlers.BulkAddStudents(env, defaultExp))
			guarded.GET("/students", handlers.ListStudents(env, defaultExp))
			guarded.DELETE("/student/:student_id", handlers.DeleteStudent(env, defaultExp))
			guarded.GET("/logs", handlers.AdminLogs(env, defaultExp))
			guarded.DELETE("/logs/student/:student_id", handlers.PurgeStudentLogs(env, defaultExp))
		}
	}

	// Per-experiment surface. The :name segment is resolved against the
	// mounted experiments on every request, so experiments started after
	// boot are reachable without rebuilding the router.
	exp := router.Group("/exp/:name")
	{
		exp.POST("/call", handlers.Call(env, namedExp, false))
		exp.GET("/functions", thisActive, handlers.ListFunctions(env, namedExp))
		exp.GET("/logs", thisActive, handlers.Logs(env, namedExp))
		exp.GET("/log-options", thisActive, handlers.LogOptions(env, namedExp))
		exp.GET("/is-registered", thisActive, handlers.IsRegistered(env, namedExp))
		exp.GET("/students", requireAdmin, thisActive, handlers.ListStudents(env, namedExp))

		expAdmin := exp.Group("/admin")
		{
			expAdmin.POST("/login", handlers.Login(env, namedExp))
			expAdmin.POST("/logout", handlers.Logout(env))
			expAdmin.GET("/ping", requireAdmin, handlers.Ping())
			expAdmin.POST("/reload-functions", requireAdmin, thisActive, handlers.ReloadFunctions(env, namedExp))

			guarded := expAdmin.Group("", requireAdmin, thisActive)
			{
				guarded.POST("/add-student", handlers.AddStudent(env, namedExp))
				guarded.POST("/add-students-bulk", handlers.BulkAddStudents(env, namedExp))
				guarded.GET("/students", handlers.ListStudents(env, namedExp))
				guarded.DELETE("/student/:student_id", handlers.DeleteStudent(env, namedExp))
				guarded.GET("/logs", handlers.AdminLogs(env, namedExp))
				guarded.DELETE("/logs/student/:student_id", handlers.PurgeStudentLogs(env, namedExp))
			}
		}
	}
}
