package greenhouse

import (
	"fmt"
	"strings"
)

// Channel is a canonical sensor or actuator status stream.
type Channel string

// Canonical channels.
const (
	ChannelTemperature  Channel = "temperature_sensor"
	ChannelHumidity     Channel = "humidity_sensor"
	ChannelSoilMoisture Channel = "soil_moisture_sensor"
	ChannelLight        Channel = "light_sensor"
	ChannelFanStatus    Channel = "fan_status"
	ChannelLEDStatus    Channel = "led_status"
	ChannelPumpStatus   Channel = "pump_status"
)

// Default units per channel.
const (
	UnitCelsius = "°C"
	UnitPercent = "%"
	UnitLux     = "lux"
	UnitState   = "state"
)

type channelSpec struct {
	channel Channel
	unit    string
}

// transportChannels maps the feed suffix used by field hardware to the
// canonical channel and its default unit.
var transportChannels = map[string]channelSpec{
	"temp":  {ChannelTemperature, UnitCelsius},
	"air":   {ChannelHumidity, UnitPercent},
	"soil":  {ChannelSoilMoisture, UnitPercent},
	"light": {ChannelLight, UnitLux},
	"fan":   {ChannelFanStatus, UnitState},
	"led":   {ChannelLEDStatus, UnitState},
	"pump":  {ChannelPumpStatus, UnitState},
}

var allChannels = []Channel{
	ChannelTemperature,
	ChannelHumidity,
	ChannelSoilMoisture,
	ChannelLight,
	ChannelFanStatus,
	ChannelLEDStatus,
	ChannelPumpStatus,
}

// MapChannel translates a transport token such as "temp" or "fan" into its
// canonical channel and default unit. Matching ignores case and surrounding
// whitespace. Unknown tokens return ErrUnknownChannel.
func MapChannel(token string) (Channel, string, error) {
	spec, ok := transportChannels[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownChannel, token)
	}
	return spec.channel, spec.unit, nil
}

// Channels returns every canonical channel in a fixed order.
func Channels() []Channel {
	out := make([]Channel, len(allChannels))
	copy(out, allChannels)
	return out
}

// Valid reports whether c is one of the canonical channels.
func (c Channel) Valid() bool {
	for _, known := range allChannels {
		if c == known {
			return true
		}
	}
	return false
}

// DefaultUnit returns the unit assumed when a reading arrives without one.
func (c Channel) DefaultUnit() string {
	for _, spec := range transportChannels {
		if spec.channel == c {
			return spec.unit
		}
	}
	return ""
}

// Device is a controllable actuator inside a field.
type Device string

// Controllable devices.
const (
	DeviceFan  Device = "fan"
	DeviceLED  Device = "led"
	DevicePump Device = "pump"
)

var allDevices = []Device{DeviceFan, DeviceLED, DevicePump}

// Devices returns the controllable devices in evaluation order.
func Devices() []Device {
	out := make([]Device, len(allDevices))
	copy(out, allDevices)
	return out
}

// ParseDevice validates a device name.
func ParseDevice(s string) (Device, error) {
	d := Device(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDevice, s)
	}
	return d, nil
}

// Valid reports whether d is fan, led or pump.
func (d Device) Valid() bool {
	return d == DeviceFan || d == DeviceLED || d == DevicePump
}

// StatusChannel is the channel on which the device reports its state.
func (d Device) StatusChannel() Channel {
	switch d {
	case DeviceFan:
		return ChannelFanStatus
	case DeviceLED:
		return ChannelLEDStatus
	case DevicePump:
		return ChannelPumpStatus
	default:
		return ""
	}
}

// MetadataKey is the field metadata key holding this device's configuration.
func (d Device) MetadataKey() string {
	return "config_" + string(d)
}
