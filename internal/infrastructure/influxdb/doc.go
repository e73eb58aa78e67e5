// Package influxdb mirrors sensor readings and device actuations into
// InfluxDB for dashboards and long-range history.
//
// The SQLite field store stays the source of truth; this mirror is
// optional and write-only. Writes are non-blocking and batched according to
// the influxdb section of config.yaml (batch_size, flush_interval).
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirror off
//	}
//	defer client.Close()
//
//	client.WriteReading("gh_1", 0, "temperature_sensor", 24.5, "°C", ts)
//
// Asynchronous write failures are delivered to the SetOnError callback.
package influxdb
