package platform

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a stable device fingerprint from the detected
// platform. The fingerprint identifies this installation to the update
// server without exposing the raw host ID. Hosts without a host ID still
// get a deterministic (if weaker) fingerprint from OS and architecture.
func Fingerprint(info *Info) string {
	parts := []string{info.OS, info.Arch, info.HostID}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
