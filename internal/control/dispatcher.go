package control

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/anhhung04/plant-care/internal/greenhouse"
	"github.com/anhhung04/plant-care/internal/infrastructure/mqtt"
)

// HTTPDispatcher sends commands to the data processor's control endpoint.
type HTTPDispatcher struct {
	endpoint endpoint
}

// NewHTTPDispatcher creates a dispatcher for the given base URL.
// A nil client selects a default with a 15s timeout.
func NewHTTPDispatcher(baseURL string, client *http.Client) (*HTTPDispatcher, error) {
	e, err := newEndpoint(baseURL, client)
	if err != nil {
		return nil, fmt.Errorf("http dispatcher: %w", err)
	}
	return &HTTPDispatcher{endpoint: e}, nil
}

// SendControl posts to /api/v1/greenhouses/<gh>/fields/<idx>/control with
// device and value as query parameters.
func (d *HTTPDispatcher) SendControl(ctx context.Context, greenhouseID string, fieldIndex int, device greenhouse.Device, value int) error {
	q := url.Values{}
	q.Set("device", string(device))
	q.Set("value", strconv.Itoa(value))

	path := fmt.Sprintf("/api/v1/greenhouses/%s/fields/%d/control?%s",
		url.PathEscape(greenhouseID), fieldIndex, q.Encode())
	return d.endpoint.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// Publisher is the MQTT publish capability the dispatcher needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
}

// MQTTDispatcher publishes commands straight to the device feeds.
// The firmware reads "1" as on and "0" as off.
type MQTTDispatcher struct {
	publisher Publisher
	topics    mqtt.Topics
}

// NewMQTTDispatcher creates a dispatcher publishing under controlPrefix.
func NewMQTTDispatcher(publisher Publisher, controlPrefix string) *MQTTDispatcher {
	return &MQTTDispatcher{
		publisher: publisher,
		topics:    mqtt.Topics{ControlPrefix: controlPrefix},
	}
}

// SendControl publishes "1" for any positive value and "0" otherwise.
// Publishing blocks until the broker acknowledges or the client times out;
// ctx is checked before sending.
func (d *MQTTDispatcher) SendControl(ctx context.Context, greenhouseID string, fieldIndex int, device greenhouse.Device, value int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrExternalCallFailed, err)
	}

	payload := "0"
	if value > 0 {
		payload = "1"
	}
	topic := d.topics.Control(greenhouseID, fieldIndex, string(device))
	if err := d.publisher.Publish(topic, []byte(payload), d.publisher.QoS(), false); err != nil {
		return fmt.Errorf("%w: publishing to %s: %w", ErrExternalCallFailed, topic, err)
	}
	return nil
}
