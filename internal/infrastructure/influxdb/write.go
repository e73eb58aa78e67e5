package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReading   = "greenhouse_reading"
	MeasurementActuation = "device_actuation"
)

// WriteReading mirrors one canonical sensor reading.
//
//	client.WriteReading("gh_1", 0, "temperature_sensor", 24.5, "°C", ts)
func (c *Client) WriteReading(greenhouseID string, fieldIndex int, channel string, value float64, unit string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementReading,
		map[string]string{
			"greenhouse": greenhouseID,
			"field":      strconv.Itoa(fieldIndex),
			"channel":    channel,
			"unit":       unit,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
	c.writeAPI.WritePoint(point)
}

// WriteActuation records a command sent to a device. source is the mode or
// job action that produced it, e.g. "automatic" or "scheduled".
func (c *Client) WriteActuation(greenhouseID string, fieldIndex int, device string, value int, source string, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementActuation,
		map[string]string{
			"greenhouse": greenhouseID,
			"field":      strconv.Itoa(fieldIndex),
			"device":     device,
			"source":     source,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
	c.writeAPI.WritePoint(point)
}
