// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config is decoded from the merged config sources.
type Config struct {
	Server struct {
		Host            string        `config:"host"`
		Port            uint          `config:"port"`
		PoolSize        int           `config:"poolSize"`
		RequestTimeout  time.Duration `config:"requestTimeout"`
		MaxRequestBytes int           `config:"maxRequestBytes"`
		ServerName      string        `config:"serverName"`
		PidFile         string        `config:"pidFile"`
	} `config:"server"`

	Logging struct {
		Level  slog.Level `config:"level"`
		Format string     `config:"format"`
	} `config:"logging"`

	OTel struct {
		ServiceName string `config:"serviceName"`
		Exporter    string `config:"exporter"`
		OTLP        struct {
			Target string `config:"target"`
		} `config:"otlp"`
	} `config:"otel"`

	Health struct {
		Enabled bool `config:"enabled"`
		Port    uint `config:"port"`
	} `config:"health"`
}

// UnsupportedValueError occurs when a config key holds a value
// outside of its documented set.
type UnsupportedValueError struct {
	Key   string
	Value string
}

// Error implements the [error] interface.
func (e UnsupportedValueError) Error() string {
	return fmt.Sprintf("unsupported value for %s: %q", e.Key, e.Value)
}

// InitializeOTel implements the [appbuilder.OTelInitializer] interface.
// Traces and metrics share the exporter chosen by otel.exporter.
func (cfg Config) InitializeOTel(ctx context.Context) error {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var exps exporters
	var err error
	switch strings.ToLower(cfg.OTel.Exporter) {
	case "", "none":
		return nil
	case "stdout":
		exps, err = newStdoutExporters()
	case "otlp":
		exps, err = newOTLPExporters(ctx, cfg.OTel.OTLP.Target)
	default:
		return UnsupportedValueError{Key: "otel.exporter", Value: cfg.OTel.Exporter}
	}
	if err != nil {
		return err
	}

	res, err := resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTel.ServiceName),
		),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exps.span),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exps.metric)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return nil
}

type exporters struct {
	span   sdktrace.SpanExporter
	metric sdkmetric.Exporter
}

func newStdoutExporters() (exporters, error) {
	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	if err != nil {
		return exporters{}, err
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
	if err != nil {
		return exporters{}, err
	}
	return exporters{span: spanExp, metric: metricExp}, nil
}

func newOTLPExporters(ctx context.Context, target string) (exporters, error) {
	// the collector may come up after the server so the dial does not block
	conn, err := grpc.DialContext(
		ctx,
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return exporters{}, err
	}

	spanExp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return exporters{}, err
	}
	metricExp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return exporters{}, err
	}
	return exporters{span: spanExp, metric: metricExp}, nil
}
