package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/c-star-org/cstar"
	"gopkg.in/yaml.v3"
)

// WorkplanDigest computes the workplan_digest SPEC_FULL §4.12 step 2
// requires: a hash of the canonicalized workplan YAML (sorted keys,
// comments stripped), so that two workplan files differing only in
// formatting or comments hash identically. Canonicalization round-trips
// through an untyped interface{}: yaml.v3 unmarshals comments away and its
// encoder sorts map[string]interface{} keys lexically, which is exactly
// the canonical form the digest needs.
func WorkplanDigest(rawYAML []byte) (string, error) {
	var generic interface{}
	if err := yaml.Unmarshal(rawYAML, &generic); err != nil {
		return "", cstar.Wrap(cstar.KindValidation, err, "canonicalizing workplan for digest")
	}
	canon, err := yaml.Marshal(generic)
	if err != nil {
		return "", cstar.Wrap(cstar.KindValidation, err, "canonicalizing workplan for digest")
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
