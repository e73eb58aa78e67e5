package automation

import (
	"fmt"
	"time"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// Feature names passed to the predictor.
const (
	FeatureTemperature  = "temperature"
	FeatureHumidity     = "humidity"
	FeatureSoilMoisture = "soil_moisture"
	FeatureLight        = "light"
	FeatureMinuteOfDay  = "minute_of_day"
)

var featureChannels = map[string]greenhouse.Channel{
	FeatureTemperature:  greenhouse.ChannelTemperature,
	FeatureHumidity:     greenhouse.ChannelHumidity,
	FeatureSoilMoisture: greenhouse.ChannelSoilMoisture,
	FeatureLight:        greenhouse.ChannelLight,
}

var featureSets = map[greenhouse.Device][]string{
	greenhouse.DeviceFan:  {FeatureTemperature, FeatureHumidity},
	greenhouse.DevicePump: {FeatureSoilMoisture, FeatureTemperature, FeatureHumidity},
	greenhouse.DeviceLED:  {FeatureLight, FeatureTemperature, FeatureHumidity, FeatureMinuteOfDay},
}

// FeatureSet returns the feature names the device's predictor needs.
func FeatureSet(device greenhouse.Device) []string {
	return append([]string(nil), featureSets[device]...)
}

// BuildFeatures assembles the device's feature vector from the latest
// readings of the field. now supplies minute_of_day and should be in the
// site's local time. A missing reading yields ErrMissingFeature.
func BuildFeatures(device greenhouse.Device, field *greenhouse.Field, now time.Time) (map[string]float64, error) {
	names, ok := featureSets[device]
	if !ok {
		return nil, fmt.Errorf("%w: %q", greenhouse.ErrUnknownDevice, device)
	}

	features := make(map[string]float64, len(names))
	for _, name := range names {
		if name == FeatureMinuteOfDay {
			features[name] = float64(now.Hour()*60 + now.Minute())
			continue
		}
		r, ok := field.Latest(featureChannels[name])
		if !ok {
			return nil, fmt.Errorf("%w: %s needs %s", ErrMissingFeature, device, name)
		}
		features[name] = r.Value
	}
	return features, nil
}
