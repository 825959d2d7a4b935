package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/freeeve/parley/internal/model"
)

// Fingerprint is a stable key derived from the subset of game state relevant
// to a set of powers. Two snapshots that are semantically identical for that
// set produce equal fingerprints regardless of input ordering; the decision
// cache depends on this.
type Fingerprint string

// ComputeFingerprint derives the fingerprint of a snapshot restricted to the
// given powers: sorted unit tuples, sorted supply-center ownership, and the
// phase identity. Deterministic, no side effects.
func ComputeFingerprint(snap *model.PhaseSnapshot, powers []model.Power) Fingerprint {
	scoped := make([]string, len(powers))
	for i, p := range powers {
		scoped[i] = string(p)
	}
	sort.Strings(scoped)

	var b strings.Builder
	fmt.Fprintf(&b, "phase|%s|%d|%s\n", snap.Name, snap.Year, snap.Season)
	for _, p := range scoped {
		units := append([]string(nil), snap.Units[model.Power(p)]...)
		sort.Strings(units)
		for _, u := range units {
			fmt.Fprintf(&b, "u|%s|%s\n", p, u)
		}
		centers := append([]string(nil), snap.Centers[model.Power(p)]...)
		sort.Strings(centers)
		for _, c := range centers {
			fmt.Fprintf(&b, "c|%s|%s\n", p, c)
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return Fingerprint(hex.EncodeToString(sum[:]))
}
