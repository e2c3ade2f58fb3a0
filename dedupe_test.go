package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecide(t *testing.T) {
	fresh := []byte("banner bytes")
	same := &RemoteFile{Title: "File:A.png", SHA1: strings.ToUpper(sha1Hex(fresh)), Size: int64(len(fresh))}
	other := &RemoteFile{Title: "File:A.png", SHA1: sha1Hex([]byte("older")), Size: 5}
	sizeOnly := &RemoteFile{Title: "File:A.png", SHA1: sha1Hex(fresh), Size: 1}

	tests := []struct {
		name     string
		existing *RemoteFile
		policy   ConflictPolicy
		want     Decision
	}{
		{"missing destination", nil, ConflictKeep, DecisionUpload},
		{"identical content, case-insensitive digest", same, ConflictOverwrite, DecisionDuplicate},
		{"differs under keep", other, ConflictKeep, DecisionDuplicate},
		{"differs under overwrite", other, ConflictOverwrite, DecisionOverwrite},
		{"size mismatch wins over digest", sizeOnly, ConflictOverwrite, DecisionOverwrite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(fresh, tt.existing, tt.policy); got != tt.want {
				t.Errorf("Decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLiveFiles(t *testing.T) {
	tests := []struct {
		name       string
		candidates []RemoteFile
		want       []string
	}{
		{"none", nil, nil},
		{"one live match", []RemoteFile{{Title: "File:Old.png"}}, []string{"File:Old.png"}},
		{"archived ignored", []RemoteFile{{Title: "File:Old.png", Archived: true}, {Title: "File:New.png", URL: "https://wiki.test/images/archive/x.png"}}, nil},
		{"several live", []RemoteFile{{Title: "File:A.png"}, {Title: "File:B.png", Archived: true}, {Title: "File:C.png"}}, []string{"File:A.png", "File:C.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, f := range liveFiles(tt.candidates) {
				got = append(got, f.Title)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("liveFiles() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConflictPoliciesOverrides(t *testing.T) {
	p, err := DefaultConflictPolicies().WithOverrides(map[string]string{"status": "overwrite"})
	if err != nil {
		t.Fatalf("WithOverrides() error = %v", err)
	}
	if got := p.For(FamilyStatusIcon); got != ConflictOverwrite {
		t.Errorf("status policy = %s, want overwrite", got)
	}
	if got := p.For(FamilyGachaBanner); got != ConflictOverwrite {
		t.Errorf("banner policy = %s, want overwrite", got)
	}
	if got := p.For(FamilyItem); got != ConflictKeep {
		t.Errorf("item policy = %s, want keep", got)
	}
	if got := DefaultConflictPolicies().For(FamilyStatusIcon); got != ConflictKeep {
		t.Errorf("defaults changed by override: status = %s", got)
	}

	for _, bad := range []map[string]string{{"music": "keep"}, {"status": "replace"}} {
		if _, err := DefaultConflictPolicies().WithOverrides(bad); !errors.Is(err, ErrValidation) {
			t.Errorf("WithOverrides(%v) error = %v, want validation", bad, err)
		}
	}
}
