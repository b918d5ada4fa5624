package telemetry

import (
	"context"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

type Options struct {
	ServiceName string
	// Writer recebe os spans exportados (padrão: stdout).
	Writer io.Writer
	Log    logrus.FieldLogger
}

// InitTracer registra um TracerProvider global que exporta para stdout.
// Devolve a função de shutdown, que faz flush dos spans pendentes.
func InitTracer(opts Options) (func(context.Context) error, error) {
	exporterOpts := []stdouttrace.Option{}
	if opts.Writer != nil {
		exporterOpts = append(exporterOpts, stdouttrace.WithWriter(opts.Writer))
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(opts.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	if opts.Log != nil {
		opts.Log.WithField("service", opts.ServiceName).Info("tracing initialized")
	}
	return tp.Shutdown, nil
}

// Middleware instrumenta o handler de entrada (span raiz de cada requisição).
func Middleware(next http.Handler, operation string) http.Handler {
	return otelhttp.NewHandler(next, operation)
}
