// ABOUTME: JID helpers for addressing accounts on the messaging network
// ABOUTME: Normalizes bare phone identifiers into fully qualified addresses

package waclient

import "strings"

// DefaultUserServer is the domain suffix for individual user accounts.
const DefaultUserServer = "s.whatsapp.net"

// NormalizeJID turns a bare identifier into a full address by appending the
// default user server. Identifiers that already carry a domain are passed
// through unchanged.
func NormalizeJID(recipient string) string {
	if strings.Contains(recipient, "@") {
		return recipient
	}
	return recipient + "@" + DefaultUserServer
}
