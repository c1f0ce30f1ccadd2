package config

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mpapenbr/lapclock/log"
)

type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
}

// SetupTelemetry installs a global meter provider which periodically
// writes the collected metrics to w.
func SetupTelemetry(ctx context.Context, w io.Writer) (*Telemetry, error) {
	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(w),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(mp)
	log.Debug("telemetry enabled")
	return &Telemetry{meterProvider: mp}, nil
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		log.Warn("could not shutdown meter provider", log.ErrorField(err))
	}
}
