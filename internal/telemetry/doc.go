// Package telemetry wires OpenTelemetry tracing and metrics for theodore.
//
// The providers are installed as OpenTelemetry globals, so packages that
// call otel.Tracer or otel.Meter at init pick them up once New runs:
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Exporters speak OTLP over gRPC (default) or HTTP/protobuf. Insecure
// export is refused for non-loopback endpoints.
package telemetry
