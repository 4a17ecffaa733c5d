// Package telemetry provides observability for the madcore controller.
//
// It integrates structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and lifecycle events behind one Telemetry value that
// is built once per command and carried through the context.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging and Printing
//
// Logger carries structured diagnostics. Printer carries operator output
// that must stay unformatted: stack event rows and build console lines.
//
//	logger := telemetry.FromContext(ctx).NewComponentLogger("tracker")
//	logger.WithStack("core").Info("tracking stack")
//
// # Metrics
//
// A CLI process is short lived, so metrics are not served over HTTP. When
// MetricsConfig.TextfilePath is set they are written in text exposition
// format on Shutdown, for collection by the node_exporter textfile collector.
//
// # Remote Calls
//
// RecordAPICall wraps a call to a remote service with a span and counters:
//
//	err := telemetry.RecordAPICall(ctx, "jenkins", "GetJobInfo", classify, func(ctx context.Context) error {
//	    info, err = c.getJobInfo(ctx, name)
//	    return err
//	})
package telemetry
