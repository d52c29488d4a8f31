// ABOUTME: Core identifier types shared across the homeserver
// ABOUTME: User and device identifiers, login stage kinds, and flow descriptors

// Package id holds the identity model of the homeserver: user and device
// identifiers, the closed set of login stage kinds, and the flow descriptors
// the authentication policy is configured with.
//
// Everything here is pure data plus validation. Types in this package never
// talk to storage or the network; they only define how identities are
// represented, parsed, and serialized on the wire.
package id
