// Package greenhouse holds the plantcare data model and the field store.
//
// A Greenhouse owns an ordered sequence of Fields. Field indices are stable:
// deleting a field leaves a hole (Present == false) rather than renumbering
// its neighbours. Each field keeps one most-recent-first series of Readings
// per Channel and a metadata object in which each controllable Device has a
// "config_<device>" entry.
//
// Device configuration is decoded into the DeviceConfig tagged union when a
// field is loaded. A malformed entry never fails the load; it is reported in
// Field.ConfigErrors so callers can skip just that device.
//
// Reads go through a bounded window (SeriesWindow readings per channel).
// RecentlyUpdated projects only the newest reading per channel, which keeps
// the reconciliation snapshot the same size regardless of history length.
// Older history is reachable through History.
//
// The SQLite repository serialises each AppendReading in one transaction, so
// a reader never sees a greenhouse whose fields are half extended.
package greenhouse
