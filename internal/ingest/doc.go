// Package ingest is the sensor ingestion path: it turns MQTT feed messages
// into canonical readings and appends them to the field store.
//
// Feed topics follow
//
//	<owner>/groups/<greenhouse>/<field>-<token>
//
// where token is a transport channel such as "temp" or "fan". Dashes in the
// greenhouse segment become underscores. The payload is either a JSON object
// {"value": 24.5, "unit": "°C", "timestamp": "..."} or a bare number.
//
// Messages that cannot be parsed are logged and dropped; HandleMessage never
// returns a parse error so the subscription keeps flowing.
//
//	ing := ingest.New(store, log)
//	ing.SetMirror(influx)
//	client.Subscribe(cfg.MQTT.Topics.Readings, 1, ing.HandleMessage)
package ingest
