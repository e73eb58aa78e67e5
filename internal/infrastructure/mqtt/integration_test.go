//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_ReadingRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = ""

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var (
		mu       sync.Mutex
		received = make(chan string, 1)
	)
	err = client.Subscribe("it-owner/groups/+/+", 1, func(topic string, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		received <- topic + "=" + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.PublishString("it-owner/groups/gh-1/0-temp", `{"value":21.5}`, 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != `it-owner/groups/gh-1/0-temp={"value":21.5}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1
	cfg.Reconnect.InitialDelay = 0

	if _, err := Connect(cfg); err == nil {
		t.Error("Connect() to closed port succeeded")
	}
}
