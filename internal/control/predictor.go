package control

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// HTTPPredictor asks a model service for the next device state.
//
//	POST <url>/predict/<device>  {"features": {"temperature": 30, ...}}
//	200 {"state": "on"}
type HTTPPredictor struct {
	endpoint endpoint
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
}

type predictResponse struct {
	State string `json:"state"`
}

// NewHTTPPredictor creates a predictor for the given base URL.
func NewHTTPPredictor(baseURL string, client *http.Client) (*HTTPPredictor, error) {
	e, err := newEndpoint(baseURL, client)
	if err != nil {
		return nil, fmt.Errorf("http predictor: %w", err)
	}
	return &HTTPPredictor{endpoint: e}, nil
}

// Predict returns the state the service answers, unvalidated.
func (p *HTTPPredictor) Predict(ctx context.Context, device greenhouse.Device, features map[string]float64) (string, error) {
	var out predictResponse
	path := "/predict/" + url.PathEscape(string(device))
	if err := p.endpoint.do(ctx, http.MethodPost, path, nil, predictRequest{Features: features}, &out); err != nil {
		return "", err
	}
	return out.State, nil
}

// Thresholds are the limits used by ThresholdPredictor.
type Thresholds struct {
	// Fan runs above either limit.
	FanTemperature float64
	FanHumidity    float64

	// Pump runs below this soil moisture.
	PumpSoilMoisture float64

	// LED runs below this light level inside the daylight window.
	LEDLight    float64
	LEDFromHour int
	LEDToHour   int
}

// DefaultThresholds returns the built-in limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FanTemperature:   30,
		FanHumidity:      80,
		PumpSoilMoisture: 30,
		LEDLight:         200,
		LEDFromHour:      6,
		LEDToHour:        20,
	}
}

// ThresholdPredictor decides from fixed limits. It serves sites that run
// automatic mode without a model service.
type ThresholdPredictor struct {
	limits Thresholds
}

// NewThresholdPredictor creates a predictor with the given limits.
func NewThresholdPredictor(limits Thresholds) *ThresholdPredictor {
	return &ThresholdPredictor{limits: limits}
}

// Predict applies the device's rule to the feature vector.
func (p *ThresholdPredictor) Predict(_ context.Context, device greenhouse.Device, features map[string]float64) (string, error) {
	l := p.limits
	var on bool

	switch device {
	case greenhouse.DeviceFan:
		on = features[automation.FeatureTemperature] > l.FanTemperature ||
			features[automation.FeatureHumidity] > l.FanHumidity
	case greenhouse.DevicePump:
		on = features[automation.FeatureSoilMoisture] < l.PumpSoilMoisture
	case greenhouse.DeviceLED:
		minute := int(features[automation.FeatureMinuteOfDay])
		daylight := minute >= l.LEDFromHour*60 && minute < l.LEDToHour*60
		on = daylight && features[automation.FeatureLight] < l.LEDLight
	default:
		return "", fmt.Errorf("%w: %q", greenhouse.ErrUnknownDevice, device)
	}

	if on {
		return string(automation.ActionOn), nil
	}
	return string(automation.ActionOff), nil
}
