// Package statsd is a helper package that wraps some common statsd
// methods. It hides the datadog dependency so that migrating to another
// metrics backend later means editing this single file.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

// Client returns the active statsd client. Defaults to a no-op client
// until Init succeeds.
func Client() ddstatsd.ClientInterface {
	return client
}

// EmitTickStat records the duration since start under the "tick" metric
// with the given stage tag. Failures are swallowed; metrics never break
// a tick.
func EmitTickStat(start time.Time, stage string) {
	duration := time.Since(start)
	_ = Client().Timing("tick", duration, []string{stage}, 1)
}

// EmitGauge records a point-in-time value.
func EmitGauge(name string, value float64, tags []string) {
	_ = Client().Gauge(name, value, tags, 1)
}

// Init replaces the no-op client with a real one pointed at address.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics.
		ddstatsd.WithNamespace("lattice"),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return err
	}
	client = newClient
	return nil
}
