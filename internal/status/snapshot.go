// Package status publishes what the engine is putting on air.
package status

import (
	"encoding/hex"
	"time"
)

// Snapshot is the engine state at one moment. It holds no logic.
type Snapshot struct {
	Time        time.Time         `json:"time"`
	Transmitter string            `json:"transmitter"`
	Active      bool              `json:"active"`
	PS          string            `json:"ps"`
	RT          string            `json:"rt"`
	PSFragments []string          `json:"ps_fragments"`
	RTFragments []string          `json:"rt_fragments"`
	Values      map[string]string `json:"values"`
	Chip        map[string]int    `json:"chip,omitempty"`
	Groups      []string          `json:"groups,omitempty"` // hex wire groups, oldest first
}

// EncodeGroups turns raw wire groups into Snapshot.Groups.
func EncodeGroups(groups [][]byte) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = hex.EncodeToString(g)
	}
	return out
}

// DecodeGroups is the inverse of EncodeGroups. Malformed entries are skipped.
func DecodeGroups(groups []string) [][]byte {
	out := make([][]byte, 0, len(groups))
	for _, s := range groups {
		if b, err := hex.DecodeString(s); err == nil {
			out = append(out, b)
		}
	}
	return out
}
