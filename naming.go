package main

import (
	"fmt"
	"strings"
)

const defaultCDNBaseURL = "https://prd-game-a-granbluefantasy.akamaized.net/assets_en/"

// AssetFamily identifies a class of uploadable content. The set is closed:
// every family has an entry in familyRules and a case in Resolver.Resolve.
type AssetFamily string

const (
	FamilyGachaBanner AssetFamily = "banner"
	FamilyEventBanner AssetFamily = "event"
	FamilyStatusIcon  AssetFamily = "status"
	FamilyItem        AssetFamily = "item"
	FamilyEnemy       AssetFamily = "enemy"
	FamilyItemPage    AssetFamily = "itempage"
	FamilySkin        AssetFamily = "skin"
	FamilyBullet      AssetFamily = "bullet"
	FamilyNPC         AssetFamily = "npc"
	FamilyArtifact    AssetFamily = "artifact"
	FamilySummon      AssetFamily = "summon"
)

// DiscoveryStrategy selects how the jobs of a family are found
type DiscoveryStrategy int

const (
	// DiscoverIndexed probes index 1, 2, ... until the first miss.
	DiscoverIndexed DiscoveryStrategy = iota
	// DiscoverFixed resolves a fixed variant list for one identifier.
	DiscoverFixed
	// DiscoverExtracted reads identifiers from template invocations on a wiki page.
	DiscoverExtracted
)

func (s DiscoveryStrategy) String() string {
	switch s {
	case DiscoverIndexed:
		return "indexed"
	case DiscoverFixed:
		return "fixed"
	case DiscoverExtracted:
		return "extracted"
	}
	return fmt.Sprintf("DiscoveryStrategy(%d)", int(s))
}

// ConflictPolicy decides what happens when the canonical file exists with different content
type ConflictPolicy string

const (
	ConflictKeep      ConflictPolicy = "keep"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

type familyRule struct {
	Strategy DiscoveryStrategy
	Policy   ConflictPolicy
	Template string // template name scanned by extraction families
	FoldCase bool   // template name compared case-insensitively
	Category string
}

var familyRules = map[AssetFamily]familyRule{
	FamilyGachaBanner: {Strategy: DiscoverIndexed, Policy: ConflictOverwrite, Category: "Gacha Banners"},
	FamilyEventBanner: {Strategy: DiscoverIndexed, Policy: ConflictOverwrite, Category: "Event Banners"},
	FamilyStatusIcon:  {Strategy: DiscoverIndexed, Policy: ConflictKeep, Category: "Status Icons"},
	FamilyItem:        {Strategy: DiscoverFixed, Policy: ConflictKeep, Category: "Item Images"},
	FamilyEnemy:       {Strategy: DiscoverFixed, Policy: ConflictKeep, Category: "Enemy Icons"},
	FamilyItemPage:    {Strategy: DiscoverExtracted, Policy: ConflictKeep, Template: "Item", FoldCase: true, Category: "Item Images"},
	FamilySkin:        {Strategy: DiscoverExtracted, Policy: ConflictKeep, Template: "CharSkin", Category: "Outfit Images"},
	FamilyBullet:      {Strategy: DiscoverExtracted, Policy: ConflictKeep, Template: "Bullet", Category: "Bullet Icons"},
	FamilyNPC:         {Strategy: DiscoverExtracted, Policy: ConflictKeep, Template: "Non-party Character", Category: "NPC Images"},
	FamilyArtifact:    {Strategy: DiscoverExtracted, Policy: ConflictKeep, Template: "Artifact", Category: "Artifact Images"},
	FamilySummon:      {Strategy: DiscoverExtracted, Policy: ConflictKeep, Template: "Summon", Category: "Summon Images"},
}

// Families returns every family in a stable order
func Families() []AssetFamily {
	return []AssetFamily{
		FamilyGachaBanner, FamilyEventBanner, FamilyStatusIcon, FamilyItem,
		FamilyEnemy, FamilyItemPage, FamilySkin, FamilyBullet,
		FamilyNPC, FamilyArtifact, FamilySummon,
	}
}

// ParseFamily maps a command-line family name to an AssetFamily
func ParseFamily(name string) (AssetFamily, error) {
	f := AssetFamily(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := familyRules[f]; !ok {
		return "", validationErrorf("unknown asset family %q", name)
	}
	return f, nil
}

func (f AssetFamily) rule() familyRule {
	s, ok := familyRules[f]
	if !ok {
		panic(fmt.Sprintf("asset family %q has no rule", string(f)))
	}
	return s
}

// Strategy returns the family's discovery strategy
func (f AssetFamily) Strategy() DiscoveryStrategy { return f.rule().Strategy }

// ItemTypes are the CDN path segments accepted for single item uploads
var ItemTypes = []string{"article", "normal", "recycling", "skillplus", "evolution", "npcaugment"}

func isItemType(t string) bool {
	for _, it := range ItemTypes {
		if it == t {
			return true
		}
	}
	return false
}

// ResolvedAsset is one {source, canonical title, redirect titles} triple.
// Alternates are tried in order when SourceURL does not exist. Categories
// override the family category on the file page.
type ResolvedAsset struct {
	Identifier     string
	SourceURL      string
	CanonicalTitle string
	RedirectTitles []string
	Categories     []string
	Alternates     []ResolvedAsset
}

// ResolveParams identifies what to name. Index is used by indexed families;
// ID and Name carry the raw identifier and display name (or an extracted pair).
type ResolveParams struct {
	ID       string
	Name     string
	ItemType string
	Index    int
}

// Resolver maps (family, params) to ordered naming triples. It performs no I/O.
type Resolver struct {
	BaseURL string
}

// NewResolver creates a resolver rooted at the CDN base URL
func NewResolver(baseURL string) *Resolver {
	if baseURL == "" {
		baseURL = defaultCDNBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Resolver{BaseURL: baseURL}
}

// Resolve returns the naming triples for one index, one fixed identifier or
// one extracted (id, name) pair.
func (r *Resolver) Resolve(family AssetFamily, p ResolveParams) ([]ResolvedAsset, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, validationErrorf("%s: identifier is required", family)
	}
	name := strings.TrimSpace(p.Name)

	switch family {
	case FamilyGachaBanner:
		if err := requireIndex(family, p.Index); err != nil {
			return nil, err
		}
		if id = NormalizeBannerID(id); id == "" {
			return nil, validationErrorf("%s: identifier %q has no banner id", family, p.ID)
		}
		file := fmt.Sprintf("banner_%s_%d.png", id, p.Index)
		return []ResolvedAsset{{
			Identifier:     file,
			SourceURL:      r.BaseURL + "img/sp/banner/gacha/" + file,
			CanonicalTitle: file,
			RedirectTitles: optionalRedirect(name, fmt.Sprintf("%s Banner %d.png", name, p.Index)),
		}}, nil

	case FamilyEventBanner:
		if err := requireIndex(family, p.Index); err != nil {
			return nil, err
		}
		return []ResolvedAsset{{
			Identifier:     fmt.Sprintf("%s_%d", id, p.Index),
			SourceURL:      fmt.Sprintf("%simg/sp/banner/events/%s/banner_%d.png", r.BaseURL, id, p.Index),
			CanonicalTitle: fmt.Sprintf("banner_event_%s_%d.png", id, p.Index),
			RedirectTitles: optionalRedirect(name, fmt.Sprintf("%s Event Banner %d.png", name, p.Index)),
		}}, nil

	case FamilyStatusIcon:
		base, ranged := ParseStatusID(id)
		if base == statusPrefix {
			return nil, validationErrorf("%s: identifier %q has no status number", family, id)
		}
		if !ranged {
			return []ResolvedAsset{r.statusAsset(base, name, "")}, nil
		}
		if err := requireIndex(family, p.Index); err != nil {
			return nil, err
		}
		suffix := fmt.Sprintf(" %d", p.Index)
		primary := r.statusAsset(fmt.Sprintf("%s_%d", base, p.Index), name, suffix)
		primary.Alternates = []ResolvedAsset{r.statusAsset(fmt.Sprintf("%s%d", base, p.Index), name, suffix)}
		return []ResolvedAsset{primary}, nil

	case FamilyItem, FamilyItemPage:
		itemType := strings.ToLower(strings.TrimSpace(p.ItemType))
		if itemType == "" {
			itemType = "article"
		}
		if !isItemType(itemType) {
			return nil, validationErrorf("%s: unsupported item type %q", family, itemType)
		}
		if name == "" {
			return nil, validationErrorf("%s: item %q needs a display name", family, id)
		}
		return r.squareIconPair(id, name, "jpg",
			func(v string) string { return fmt.Sprintf("img/sp/assets/item/%s/%s/%s.jpg", itemType, v, id) },
			func(v string) string { return fmt.Sprintf("item_%s_%s_%s.jpg", itemType, v, id) }), nil

	case FamilyEnemy:
		if name == "" {
			return nil, validationErrorf("%s: enemy %q needs a display name", family, id)
		}
		return r.squareIconPair(id, name, "png",
			func(v string) string { return fmt.Sprintf("img/sp/assets/enemy/%s/%s.png", v, id) },
			func(v string) string { return fmt.Sprintf("enemy_%s_%s.png", v, id) }), nil

	case FamilySkin:
		if name == "" {
			return nil, validationErrorf("%s: skin %q needs a page name", family, id)
		}
		return r.sectionedAssets("npc", id, name, skinSections), nil

	case FamilyNPC:
		if name == "" {
			return nil, validationErrorf("%s: npc %q needs a page name", family, id)
		}
		return r.sectionedAssets("npc", id, name, npcSections), nil

	case FamilyArtifact:
		if name == "" {
			return nil, validationErrorf("%s: artifact %q needs a page name", family, id)
		}
		return r.sectionedAssets("artifact", id, name, artifactSections), nil

	case FamilySummon:
		if name == "" {
			return nil, validationErrorf("%s: summon %q needs a page name", family, id)
		}
		return r.sectionedAssets("summon", id, name, summonSections), nil

	case FamilyBullet:
		if name == "" {
			return nil, validationErrorf("%s: bullet %q needs a display name", family, id)
		}
		return []ResolvedAsset{{
			Identifier:     id,
			SourceURL:      fmt.Sprintf("%simg/sp/assets/bullet/m/%s.jpg", r.BaseURL, id),
			CanonicalTitle: fmt.Sprintf("bullet_m_%s.jpg", id),
			RedirectTitles: []string{name + " icon.jpg"},
		}}, nil
	}
	return nil, invariantErrorf("no naming rule for asset family %q", family)
}

func (r *Resolver) statusAsset(identifier, name, suffix string) ResolvedAsset {
	return ResolvedAsset{
		Identifier:     identifier,
		SourceURL:      r.BaseURL + "img/sp/ui/icon/status/x64/" + identifier + ".png",
		CanonicalTitle: identifier + ".png",
		RedirectTitles: optionalRedirect(name, "Status "+name+suffix+".png"),
	}
}

func (r *Resolver) squareIconPair(id, name, ext string, path, canonical func(variant string) string) []ResolvedAsset {
	variants := []struct{ key, label string }{{"s", "square"}, {"m", "icon"}}
	assets := make([]ResolvedAsset, 0, len(variants))
	for _, v := range variants {
		assets = append(assets, ResolvedAsset{
			Identifier:     id,
			SourceURL:      r.BaseURL + path(v.key),
			CanonicalTitle: canonical(v.key),
			RedirectTitles: []string{fmt.Sprintf("%s %s.%s", name, v.label, ext)},
		})
	}
	return assets
}

// assetSection is one CDN directory of a page-scanned family. Every variant
// becomes its own file; labels name the per-variant redirects.
type assetSection struct {
	section    string
	ext        string
	fileSuffix string
	variants   []assetVariant
	categories []string
}

type assetVariant struct {
	suffix, label string
}

func variantList(suffixes, labels []string) []assetVariant {
	out := make([]assetVariant, len(suffixes))
	for i, s := range suffixes {
		out[i] = assetVariant{suffix: s, label: labels[i]}
	}
	return out
}

var (
	skinVariants   = variantList([]string{"_01", "_01_0", "_01_1", "_81", "_82"}, []string{"A", "A0", "A1", "ST", "ST2"})
	summonVariants = variantList([]string{"", "_02", "_03", "_04"}, []string{"A", "B", "C", "D"})
	singleVariant  = []assetVariant{{}}
	npcVariant     = []assetVariant{{suffix: "_01"}}
)

func outfit(section, ext, fileSuffix, category string) assetSection {
	return assetSection{section, ext, fileSuffix, skinVariants, []string{"Outfit Images", category}}
}

var (
	skinSections = []assetSection{
		outfit("zoom", "png", "", "Full Outfit Images"),
		outfit("sd", "png", "_SD", "Sprite Outfit Images"),
		outfit("f", "jpg", "_tall", "Tall Outfit Images"),
		outfit("m", "jpg", "_icon", "Icon Outfit Images"),
		outfit("s", "jpg", "_square", "Square Outfit Images"),
		outfit("skin", "png", "_skin", "Skin Outfit Images"),
		outfit("detail", "png", "_detail", "Detail Outfit Character Images"),
		outfit("t", "png", "_babyl", "Babyl Outfit Character Images"),
		outfit("raid_normal", "jpg", "_raid", "Raid Outfit Character Images"),
		outfit("cutin_special", "jpg", "_cutin", "Cutin Outfit Character Images"),
		outfit("raid_chain", "jpg", "_chain", "Chain Burst Outfit Character Images"),
		outfit("quest", "jpg", "_quest", "Quest Outfit Character Images"),
		outfit("qm", "png", "_qm", "QM Outfit Character Images"),
	}

	npcSections = []assetSection{
		{"zoom", "png", "", npcVariant, []string{"NPC Images", "Full NPC Images"}},
		{"m", "jpg", "_icon", npcVariant, []string{"NPC Images", "Icon NPC Images"}},
	}

	artifactSections = []assetSection{
		{"hdr", "png", "", singleVariant, []string{"Artifact Images", "Full Artifact Images"}},
		{"m", "jpg", "_icon", singleVariant, []string{"Artifact Images", "Icon Artifact Images"}},
		{"s", "jpg", "_square", singleVariant, []string{"Artifact Images", "Square Artifact Images"}},
	}

	summonSections = []assetSection{
		{"b", "png", "", summonVariants, []string{"Summon Images", "Full Summon Images"}},
		{"ls", "jpg", "_tall", summonVariants, []string{"Summon Images", "Tall Summon Images"}},
		{"m", "jpg", "_icon", summonVariants, []string{"Summon Images", "Icon Summon Images"}},
		{"s", "jpg", "_square", summonVariants, []string{"Summon Images", "Square Summon Images"}},
		{"party_main", "jpg", "_party_main", summonVariants, []string{"Summon Images", "Party Main Summon Images"}},
		{"party_sub", "jpg", "_party_sub", summonVariants, []string{"Summon Images", "Party Sub Summon Images"}},
		{"detail", "png", "_detail", summonVariants, []string{"Summon Images", "Detail Summon Images"}},
	}
)

// sectionedAssets lists every section x variant of id. The first variant of a
// section also gets the unlabelled page redirect.
func (r *Resolver) sectionedAssets(assetType, id, page string, sections []assetSection) []ResolvedAsset {
	prefix := ucfirst(assetType)
	var assets []ResolvedAsset
	for _, sec := range sections {
		multi := len(sec.variants) > 1
		for _, v := range sec.variants {
			var redirects []string
			if !multi || v.label == "" || v.label == "A" {
				redirects = append(redirects, fmt.Sprintf("%s%s.%s", page, sec.fileSuffix, sec.ext))
			}
			if multi && v.label != "" {
				spacer := ""
				if sec.fileSuffix == "" {
					spacer = " "
				}
				redirects = append(redirects, fmt.Sprintf("%s%s%s%s.%s", page, sec.fileSuffix, spacer, v.label, sec.ext))
			}
			assets = append(assets, ResolvedAsset{
				Identifier:     id + v.suffix,
				SourceURL:      fmt.Sprintf("%simg/sp/assets/%s/%s/%s%s.%s", r.BaseURL, assetType, sec.section, id, v.suffix, sec.ext),
				CanonicalTitle: fmt.Sprintf("%s %s %s%s.%s", prefix, sec.section, id, v.suffix, sec.ext),
				RedirectTitles: redirects,
				Categories:     sec.categories,
			})
		}
	}
	return assets
}

func requireIndex(family AssetFamily, index int) error {
	if index < 1 {
		return invariantErrorf("%s: index %d is not 1-based", family, index)
	}
	return nil
}

func optionalRedirect(name, title string) []string {
	if name == "" {
		return nil
	}
	return []string{title}
}

// NormalizeBannerID strips an optional "banner_" prefix
func NormalizeBannerID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(strings.ToLower(id), "banner_") {
		return id[len("banner_"):]
	}
	return id
}

const statusPrefix = "status_"

// ParseStatusID normalises a status identifier to its "status_" form and reports
// whether it requests a ranged upload (trailing "#", optionally after "_").
// An identifier without a status number yields the bare prefix.
func ParseStatusID(raw string) (base string, ranged bool) {
	num := strings.TrimSpace(raw)
	if strings.HasSuffix(num, "#") {
		ranged = true
		num = strings.TrimSuffix(num, "#")
	}
	num = strings.TrimPrefix(num, statusPrefix)
	if ranged {
		num = strings.TrimSuffix(num, "_")
	}
	return statusPrefix + num, ranged
}
