// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/classlab/services/rpcserver/dispatch"
	"github.com/AleutianAI/classlab/services/rpcserver/experiment"
	"github.com/AleutianAI/classlab/services/rpcserver/handlers"
	"github.com/AleutianAI/classlab/services/rpcserver/middleware"
	"github.com/AleutianAI/classlab/services/rpcserver/observability"
	"github.com/AleutianAI/classlab/services/rpcserver/routes"
	"github.com/AleutianAI/classlab/services/rpcserver/state"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const appVersion = "0.1.0"

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		// Tracing is opt-in; without a collector endpoint the server runs
		// untraced.
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("classlab-rpcserver")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// callTimeout reads the optional invocation timeout. Unset or invalid
// means no timeout, matching the core contract.
func callTimeout() time.Duration {
	raw := os.Getenv("CLASSLAB_CALL_TIMEOUT")
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		slog.Warn("ignoring invalid CLASSLAB_CALL_TIMEOUT", "value", raw)
		return 0
	}
	return d
}

func main() {
	port := os.Getenv("CLASSLAB_PORT")
	if port == "" {
		port = "8000"
	}
	root := os.Getenv("CLASSLAB_ROOT")
	if root == "" {
		root = "."
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	gate := state.New()
	manager := experiment.NewManager(root, gate)
	defer manager.Close()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	manager.EnableWatch(watchCtx)

	// Mount every experiment present at startup so the /exp/:name surface
	// is immediately reachable; experiments added later are mounted by the
	// start endpoint.
	discovered := manager.Discover()
	for _, name := range discovered {
		if _, err := manager.Mount(name); err != nil {
			slog.Error("failed to mount experiment", "experiment", name, "error", err)
		}
	}
	slog.Info("experiments mounted", "experiments", gate.Mounted())

	defaultName := experiment.ChooseDefault(os.Getenv("DEFAULT_EXPERIMENT"), discovered)
	if defaultName == "" {
		slog.Warn("no experiments found; root APIs will answer 503", "root", manager.ExperimentsDir())
	} else {
		manager.SetDefault(defaultName)
		slog.Info("root APIs bound to default experiment", "experiment", defaultName)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	dispatcher := &dispatch.Dispatcher{
		Gate:        gate,
		Metrics:     metrics,
		CallTimeout: callTimeout(),
	}
	env := &handlers.Env{
		Gate:       gate,
		Manager:    manager,
		Dispatcher: dispatcher,
		Version:    appVersion,
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("classlab-rpcserver"))

	// Rotating the session secret on every start logs everyone out, so a
	// crashed or restarted server never honors stale admin cookies.
	secret := middleware.NewSessionSecret(os.Getenv("SESSION_SECRET_KEY"))
	router.Use(middleware.Sessions(secret))
	slog.Info("session secret rotated at startup; previous sessions invalidated")

	routes.SetupRoutes(router, env, prometheus.DefaultGatherer)

	log.Println("Starting the classlab RPC server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
