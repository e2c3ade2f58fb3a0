package main

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

// Decision is what to do with freshly fetched content
type Decision string

const (
	DecisionUpload    Decision = "upload"
	DecisionDuplicate Decision = "duplicate"
	DecisionOverwrite Decision = "overwrite"
)

// Decide compares fresh bytes with the current canonical destination. A missing
// destination is uploaded; identical content is a duplicate; differing content
// is overwritten only under ConflictOverwrite and kept otherwise.
func Decide(fresh []byte, existing *RemoteFile, policy ConflictPolicy) Decision {
	if existing == nil {
		return DecisionUpload
	}
	if sameContent(fresh, existing) {
		return DecisionDuplicate
	}
	if policy == ConflictOverwrite {
		return DecisionOverwrite
	}
	return DecisionDuplicate
}

func sameContent(fresh []byte, f *RemoteFile) bool {
	if f.Size > 0 && f.Size != int64(len(fresh)) {
		return false
	}
	return strings.EqualFold(f.SHA1, sha1Hex(fresh))
}

// MediaWiki indexes files by SHA-1, so that is the digest we compare with.
func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// liveFiles drops old file revisions from a digest lookup
func liveFiles(candidates []RemoteFile) []RemoteFile {
	var live []RemoteFile
	for _, c := range candidates {
		if c.Archived || strings.Contains(c.URL, "/archive/") {
			continue
		}
		live = append(live, c)
	}
	return live
}

// ConflictPolicies is the explicit per-family policy table
type ConflictPolicies map[AssetFamily]ConflictPolicy

// DefaultConflictPolicies returns the built-in policy of every family
func DefaultConflictPolicies() ConflictPolicies {
	p := make(ConflictPolicies, len(familyRules))
	for f, s := range familyRules {
		p[f] = s.Policy
	}
	return p
}

// WithOverrides applies configured overrides keyed by family name
func (p ConflictPolicies) WithOverrides(overrides map[string]string) (ConflictPolicies, error) {
	out := make(ConflictPolicies, len(p))
	for f, v := range p {
		out[f] = v
	}
	for name, value := range overrides {
		f, err := ParseFamily(name)
		if err != nil {
			return nil, fmt.Errorf("conflict policy: %w", err)
		}
		switch ConflictPolicy(value) {
		case ConflictKeep, ConflictOverwrite:
			out[f] = ConflictPolicy(value)
		default:
			return nil, validationErrorf("conflict policy for %s must be keep or overwrite, got %q", name, value)
		}
	}
	return out, nil
}

// For returns the policy of a family; every family has one
func (p ConflictPolicies) For(f AssetFamily) ConflictPolicy {
	if v, ok := p[f]; ok {
		return v
	}
	return f.rule().Policy
}
