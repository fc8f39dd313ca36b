// Package app is the application handle shared by every protocol handler.
// It owns one route tree per protocol, built from the configuration, and
// exposes the configuration, the logger and the outbound client.
package app
