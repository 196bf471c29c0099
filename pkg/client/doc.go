// Package client implements the Session Client: sign-in/out, task
// scheduling and polling, decision download, and report upload against the
// Bridge HTTP API. Every call retries transient failures with exponential
// backoff and surfaces a *types.RemoteTransportError once retries are
// exhausted.
package client
