package greenhouse

import (
	"errors"
	"testing"
)

func TestMapChannel(t *testing.T) {
	tests := []struct {
		token    string
		want     Channel
		wantUnit string
	}{
		{"temp", ChannelTemperature, UnitCelsius},
		{"air", ChannelHumidity, UnitPercent},
		{"soil", ChannelSoilMoisture, UnitPercent},
		{"light", ChannelLight, UnitLux},
		{"fan", ChannelFanStatus, UnitState},
		{"led", ChannelLEDStatus, UnitState},
		{"pump", ChannelPumpStatus, UnitState},
		{" TEMP ", ChannelTemperature, UnitCelsius},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, unit, err := MapChannel(tt.token)
			if err != nil {
				t.Fatalf("MapChannel(%q) error = %v", tt.token, err)
			}
			if got != tt.want {
				t.Errorf("channel = %q, want %q", got, tt.want)
			}
			if unit != tt.wantUnit {
				t.Errorf("unit = %q, want %q", unit, tt.wantUnit)
			}
		})
	}
}

func TestMapChannel_Unknown(t *testing.T) {
	for _, token := range []string{"", "co2", "temperature", "fan2"} {
		_, _, err := MapChannel(token)
		if !errors.Is(err, ErrUnknownChannel) {
			t.Errorf("MapChannel(%q) error = %v, want ErrUnknownChannel", token, err)
		}
	}
}

func TestChannel_DefaultUnit(t *testing.T) {
	if got := ChannelLight.DefaultUnit(); got != UnitLux {
		t.Errorf("light default unit = %q, want %q", got, UnitLux)
	}
	if got := Channel("bogus").DefaultUnit(); got != "" {
		t.Errorf("unknown channel default unit = %q, want empty", got)
	}
}

func TestChannels_ReturnsCopy(t *testing.T) {
	list := Channels()
	if len(list) != 7 {
		t.Fatalf("len(Channels()) = %d, want 7", len(list))
	}
	list[0] = "mutated"
	if Channels()[0] != ChannelTemperature {
		t.Error("Channels() exposed internal slice")
	}
}

func TestDevice_StatusChannel(t *testing.T) {
	tests := map[Device]Channel{
		DeviceFan:  ChannelFanStatus,
		DeviceLED:  ChannelLEDStatus,
		DevicePump: ChannelPumpStatus,
	}
	for d, want := range tests {
		if got := d.StatusChannel(); got != want {
			t.Errorf("%s.StatusChannel() = %q, want %q", d, got, want)
		}
	}
	if got := Device("heater").StatusChannel(); got != "" {
		t.Errorf("unknown device status channel = %q, want empty", got)
	}
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice(" Fan ")
	if err != nil {
		t.Fatalf("ParseDevice() error = %v", err)
	}
	if d != DeviceFan {
		t.Errorf("ParseDevice() = %q, want fan", d)
	}

	if _, err := ParseDevice("heater"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("ParseDevice(heater) error = %v, want ErrUnknownDevice", err)
	}
}

func TestDevice_MetadataKey(t *testing.T) {
	if got := DevicePump.MetadataKey(); got != "config_pump" {
		t.Errorf("MetadataKey() = %q, want config_pump", got)
	}
}
