package main

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestResolve(t *testing.T) {
	r := NewResolver("https://cdn.test")

	tests := []struct {
		name   string
		family AssetFamily
		params ResolveParams
		want   []ResolvedAsset
	}{
		{
			name:   "gacha banner strips prefix",
			family: FamilyGachaBanner,
			params: ResolveParams{ID: "banner_summer01", Name: "Summer", Index: 2},
			want: []ResolvedAsset{{
				Identifier:     "banner_summer01_2.png",
				SourceURL:      "https://cdn.test/img/sp/banner/gacha/banner_summer01_2.png",
				CanonicalTitle: "banner_summer01_2.png",
				RedirectTitles: []string{"Summer Banner 2.png"},
			}},
		},
		{
			name:   "event banner without name",
			family: FamilyEventBanner,
			params: ResolveParams{ID: "biography042", Index: 1},
			want: []ResolvedAsset{{
				Identifier:     "biography042_1",
				SourceURL:      "https://cdn.test/img/sp/banner/events/biography042/banner_1.png",
				CanonicalTitle: "banner_event_biography042_1.png",
			}},
		},
		{
			name:   "single status",
			family: FamilyStatusIcon,
			params: ResolveParams{ID: "1438", Name: "Burn"},
			want: []ResolvedAsset{{
				Identifier:     "status_1438",
				SourceURL:      "https://cdn.test/img/sp/ui/icon/status/x64/status_1438.png",
				CanonicalTitle: "status_1438.png",
				RedirectTitles: []string{"Status Burn.png"},
			}},
		},
		{
			name:   "ranged status has an alternate",
			family: FamilyStatusIcon,
			params: ResolveParams{ID: "status_1438_#", Name: "Burn", Index: 3},
			want: []ResolvedAsset{{
				Identifier:     "status_1438_3",
				SourceURL:      "https://cdn.test/img/sp/ui/icon/status/x64/status_1438_3.png",
				CanonicalTitle: "status_1438_3.png",
				RedirectTitles: []string{"Status Burn 3.png"},
				Alternates: []ResolvedAsset{{
					Identifier:     "status_14383",
					SourceURL:      "https://cdn.test/img/sp/ui/icon/status/x64/status_14383.png",
					CanonicalTitle: "status_14383.png",
					RedirectTitles: []string{"Status Burn 3.png"},
				}},
			}},
		},
		{
			name:   "item square and icon",
			family: FamilyItem,
			params: ResolveParams{ID: "1001", Name: "Silver Centrum", ItemType: "Evolution"},
			want: []ResolvedAsset{
				{
					Identifier:     "1001",
					SourceURL:      "https://cdn.test/img/sp/assets/item/evolution/s/1001.jpg",
					CanonicalTitle: "item_evolution_s_1001.jpg",
					RedirectTitles: []string{"Silver Centrum square.jpg"},
				},
				{
					Identifier:     "1001",
					SourceURL:      "https://cdn.test/img/sp/assets/item/evolution/m/1001.jpg",
					CanonicalTitle: "item_evolution_m_1001.jpg",
					RedirectTitles: []string{"Silver Centrum icon.jpg"},
				},
			},
		},
		{
			name:   "enemy",
			family: FamilyEnemy,
			params: ResolveParams{ID: "7300", Name: "Slime"},
			want: []ResolvedAsset{
				{
					Identifier:     "7300",
					SourceURL:      "https://cdn.test/img/sp/assets/enemy/s/7300.png",
					CanonicalTitle: "enemy_s_7300.png",
					RedirectTitles: []string{"Slime square.png"},
				},
				{
					Identifier:     "7300",
					SourceURL:      "https://cdn.test/img/sp/assets/enemy/m/7300.png",
					CanonicalTitle: "enemy_m_7300.png",
					RedirectTitles: []string{"Slime icon.png"},
				},
			},
		},
		{
			name:   "npc zoom and icon",
			family: FamilyNPC,
			params: ResolveParams{ID: "3990001000", Name: "Rackam (NPC)"},
			want: []ResolvedAsset{
				{
					Identifier:     "3990001000_01",
					SourceURL:      "https://cdn.test/img/sp/assets/npc/zoom/3990001000_01.png",
					CanonicalTitle: "Npc zoom 3990001000_01.png",
					RedirectTitles: []string{"Rackam (NPC).png"},
					Categories:     []string{"NPC Images", "Full NPC Images"},
				},
				{
					Identifier:     "3990001000_01",
					SourceURL:      "https://cdn.test/img/sp/assets/npc/m/3990001000_01.jpg",
					CanonicalTitle: "Npc m 3990001000_01.jpg",
					RedirectTitles: []string{"Rackam (NPC)_icon.jpg"},
					Categories:     []string{"NPC Images", "Icon NPC Images"},
				},
			},
		},
		{
			name:   "artifact",
			family: FamilyArtifact,
			params: ResolveParams{ID: "301010101", Name: "Blade Relic"},
			want: []ResolvedAsset{
				{
					Identifier:     "301010101",
					SourceURL:      "https://cdn.test/img/sp/assets/artifact/hdr/301010101.png",
					CanonicalTitle: "Artifact hdr 301010101.png",
					RedirectTitles: []string{"Blade Relic.png"},
					Categories:     []string{"Artifact Images", "Full Artifact Images"},
				},
				{
					Identifier:     "301010101",
					SourceURL:      "https://cdn.test/img/sp/assets/artifact/m/301010101.jpg",
					CanonicalTitle: "Artifact m 301010101.jpg",
					RedirectTitles: []string{"Blade Relic_icon.jpg"},
					Categories:     []string{"Artifact Images", "Icon Artifact Images"},
				},
				{
					Identifier:     "301010101",
					SourceURL:      "https://cdn.test/img/sp/assets/artifact/s/301010101.jpg",
					CanonicalTitle: "Artifact s 301010101.jpg",
					RedirectTitles: []string{"Blade Relic_square.jpg"},
					Categories:     []string{"Artifact Images", "Square Artifact Images"},
				},
			},
		},
		{
			name:   "bullet",
			family: FamilyBullet,
			params: ResolveParams{ID: "10101", Name: "Parabellum"},
			want: []ResolvedAsset{{
				Identifier:     "10101",
				SourceURL:      "https://cdn.test/img/sp/assets/bullet/m/10101.jpg",
				CanonicalTitle: "bullet_m_10101.jpg",
				RedirectTitles: []string{"Parabellum icon.jpg"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.family, tt.params)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveSkinVariants(t *testing.T) {
	r := NewResolver("https://cdn.test/")
	got, err := r.Resolve(FamilySkin, ResolveParams{ID: "3710001000", Name: "Lecia (Summer)"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 13*5 {
		t.Fatalf("got %d variants, want 65", len(got))
	}

	first := got[0]
	if first.CanonicalTitle != "Npc zoom 3710001000_01.png" {
		t.Errorf("first canonical = %q", first.CanonicalTitle)
	}
	wantRedirects := []string{"Lecia (Summer).png", "Lecia (Summer) A.png"}
	if diff := cmp.Diff(wantRedirects, first.RedirectTitles); diff != "" {
		t.Errorf("first redirects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Lecia (Summer) A0.png"}, got[1].RedirectTitles); diff != "" {
		t.Errorf("second redirects mismatch (-want +got):\n%s", diff)
	}

	last := got[len(got)-1]
	if last.SourceURL != "https://cdn.test/img/sp/assets/npc/qm/3710001000_82.png" {
		t.Errorf("last source = %q", last.SourceURL)
	}
	if last.CanonicalTitle != "Npc qm 3710001000_82.png" {
		t.Errorf("last canonical = %q", last.CanonicalTitle)
	}
	if diff := cmp.Diff([]string{"Lecia (Summer)_qmST2.png"}, last.RedirectTitles); diff != "" {
		t.Errorf("last redirects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Outfit Images", "QM Outfit Character Images"}, last.Categories); diff != "" {
		t.Errorf("last categories mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveSummonVariants(t *testing.T) {
	r := NewResolver("https://cdn.test/")
	got, err := r.Resolve(FamilySummon, ResolveParams{ID: "2040001000", Name: "Colossus"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 7*4 {
		t.Fatalf("got %d variants, want 28", len(got))
	}

	tests := []struct {
		i         int
		url       string
		canonical string
		redirects []string
	}{
		{0, "https://cdn.test/img/sp/assets/summon/b/2040001000.png", "Summon b 2040001000.png", []string{"Colossus.png", "Colossus A.png"}},
		{1, "https://cdn.test/img/sp/assets/summon/b/2040001000_02.png", "Summon b 2040001000_02.png", []string{"Colossus B.png"}},
		{4, "https://cdn.test/img/sp/assets/summon/ls/2040001000.jpg", "Summon ls 2040001000.jpg", []string{"Colossus_tall.jpg", "Colossus_tallA.jpg"}},
	}
	for _, tt := range tests {
		a := got[tt.i]
		if a.SourceURL != tt.url || a.CanonicalTitle != tt.canonical {
			t.Errorf("variant %d = %q, %q; want %q, %q", tt.i, a.SourceURL, a.CanonicalTitle, tt.url, tt.canonical)
		}
		if diff := cmp.Diff(tt.redirects, a.RedirectTitles); diff != "" {
			t.Errorf("variant %d redirects mismatch (-want +got):\n%s", tt.i, diff)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver("")

	tests := []struct {
		name   string
		family AssetFamily
		params ResolveParams
		want   error
	}{
		{"empty id", FamilyGachaBanner, ResolveParams{Index: 1}, ErrValidation},
		{"zero index", FamilyGachaBanner, ResolveParams{ID: "x"}, ErrInvariantViolation},
		{"bad item type", FamilyItem, ResolveParams{ID: "1", Name: "A", ItemType: "weapon"}, ErrValidation},
		{"item without name", FamilyItem, ResolveParams{ID: "1"}, ErrValidation},
		{"bare status prefix", FamilyStatusIcon, ResolveParams{ID: "status_"}, ErrValidation},
		{"ranged status without number", FamilyStatusIcon, ResolveParams{ID: "status_#", Index: 1}, ErrValidation},
		{"bare banner prefix", FamilyGachaBanner, ResolveParams{ID: "banner_", Index: 1}, ErrValidation},
		{"npc without page", FamilyNPC, ResolveParams{ID: "1"}, ErrValidation},
		{"skin without page", FamilySkin, ResolveParams{ID: "1"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.family, tt.params)
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseStatusID(t *testing.T) {
	tests := []struct {
		raw        string
		wantBase   string
		wantRanged bool
	}{
		{"1438", "status_1438", false},
		{"status_1438", "status_1438", false},
		{"1438#", "status_1438", true},
		{"1438_#", "status_1438", true},
		{" status_50_# ", "status_50", true},
		{"status_#", "status_", true},
		{"#", "status_", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			base, ranged := ParseStatusID(tt.raw)
			if base != tt.wantBase || ranged != tt.wantRanged {
				t.Errorf("ParseStatusID(%q) = %q, %v; want %q, %v", tt.raw, base, ranged, tt.wantBase, tt.wantRanged)
			}
		})
	}
}

func TestFamilies(t *testing.T) {
	for _, f := range Families() {
		if _, ok := familyRules[f]; !ok {
			t.Errorf("family %s has no rule", f)
		}
		got, err := ParseFamily(" " + string(f) + " ")
		if err != nil || got != f {
			t.Errorf("ParseFamily(%q) = %q, %v", f, got, err)
		}
	}
	if len(Families()) != len(familyRules) {
		t.Errorf("Families() lists %d of %d families", len(Families()), len(familyRules))
	}
	if _, err := ParseFamily("music"); !errors.Is(err, ErrValidation) {
		t.Errorf("ParseFamily(music) error = %v", err)
	}
}
