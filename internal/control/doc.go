// Package control holds the external collaborators of the reconciler.
//
// Each type satisfies one of the automation interfaces:
//
//   - HTTPDispatcher and MQTTDispatcher send device commands
//   - HTTPNotifier delivers "Device Control" notifications to the backend
//   - HTTPPredictor asks a remote model service for the next device state
//   - ThresholdPredictor answers locally from fixed rules
//
// Transport failures and non-2xx answers are wrapped in ErrExternalCallFailed.
// Callers bound every call with a context deadline.
package control
