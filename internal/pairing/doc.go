// Package pairing caches the current device-pairing challenge and its
// rendered QR image, holding at most one challenge at a time.
package pairing
