// Package session derives pleezer's stable device identity (spec.md §3,
// §4.8: "Duplicate-device avoidance").
package session

import (
	"crypto/sha1"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// pleezerNamespace is a fixed namespace UUID (RFC 4122 §4.3 style, generated
// once and frozen) used to derive a deterministic device id from the
// machine fingerprint + product name. Using a namespace UUID rather than a
// random one is what makes DeviceID stable across restarts (spec.md §8,
// testable property 7: "two restarts of the same binary on the same
// machine publish identical device_id").
var pleezerNamespace = uuid.MustParse("6e4e6c1e-6f1e-4d8a-9d6b-6c6f0a2e6e4e")

// DeviceID derives a stable, machine-specific identifier by hashing the
// machine fingerprint together with productName into a version-5 (SHA-1
// namespaced) UUID. It intentionally avoids uuid.New() (v4, random): a
// random id would mint a new "phantom" device in the controller UI on
// every restart, which is exactly what spec.md §4.8 forbids.
func DeviceID(fingerprint string, productName string) string {
	name := fingerprint + "|" + productName
	return uuid.NewSHA1(pleezerNamespace, []byte(name)).String()
}

// MachineFingerprint builds a best-effort, stable-per-host string from the
// hostname and (when readable) the machine id exposed by the OS. It never
// fails outright — an empty machine id still yields a usable, if weaker,
// fingerprint from the hostname alone.
func MachineFingerprint() string {
	hostname, _ := os.Hostname()

	machineID := readMachineID()

	h := sha1.New()
	fmt.Fprintf(h, "%s|%s", hostname, machineID)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// readMachineID reads /etc/machine-id on platforms that have one; it
// returns "" otherwise, leaving the fingerprint to rely on hostname alone.
func readMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(path); err == nil {
			return string(b)
		}
	}
	return ""
}
