// Package device defines the wireless-link contract a sensor session is
// built on.
//
// It provides:
//   - Transport, the scan/connect/discover/subscribe/write/disconnect capability
//   - Advertisement and Device, the discovery-time view of a peripheral
//   - Structured connection errors shared by all transport implementations
//   - UUID normalization helpers
package device
