// Package mqtt provides MQTT client connectivity for the plantcare service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Subscription to the sensor feed topics that ingestion consumes
//   - Publishing bare "1"/"0" commands to device control feeds
//   - Last Will and Testament (LWT) for offline detection
//
// # Topic layout
//
// Field hardware publishes readings to
//
//	<owner>/groups/<greenhouse>/<field>-<token>
//
// and listens for commands on
//
//	<control_prefix><greenhouse>.<field>-<device>
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.MQTT.Topics.Readings, 1, ingestor.HandleMessage)
//
// Subscriptions are tracked and restored after every reconnect.
package mqtt
