// Package media holds a table of well-known removable-media geometries,
// loaded from an embedded CSV exactly as disks.go loads disk geometries in
// the wider codebase. It's a diagnostic/fixture-building aid: Lookup never
// participates in BPB validation decisions (those are spec.md §4.3's rules
// alone), and tests use Profile to build realistic fixture boot sectors.
package media

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/tracmap/goufat/bpb"
)

// Profile describes one well-known media geometry.
type Profile struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	TotalBytes        uint64 `csv:"total_bytes"`
	BytesPerSector    uint   `csv:"bytes_per_sector"`
	SectorsPerCluster uint   `csv:"sectors_per_cluster"`
	FATType           string `csv:"fat_type"`
}

//go:embed geometries.csv
var rawCSV string

var profiles map[string]Profile

func init() {
	profiles = make(map[string]Profile)

	reader := strings.NewReader(rawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Profile) error {
		if _, exists := profiles[row.Slug]; exists {
			return fmt.Errorf("duplicate media profile slug %q", row.Slug)
		}
		profiles[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// Lookup returns the predefined profile with the given slug.
func Lookup(slug string) (Profile, bool) {
	p, ok := profiles[slug]
	return p, ok
}

// All returns every predefined profile, keyed by slug.
func All() map[string]Profile {
	out := make(map[string]Profile, len(profiles))
	for k, v := range profiles {
		out[k] = v
	}
	return out
}

func (p Profile) asMediaClass() bpb.MediaClass {
	return bpb.MediaClass{
		Name:         p.Name,
		FATType:      p.FATType,
		ClusterBytes: uint64(p.SectorsPerCluster) * uint64(p.BytesPerSector),
	}
}

// MatchesGeometry reports whether a parsed Geometry is plausibly the media
// profile p: same FAT type and a cluster size consistent with
// SectorsPerCluster/BytesPerSector. This is advisory only, used for
// diagnostics/logging — it is never a validation rule.
func (p Profile) MatchesGeometry(g *bpb.Geometry, log2BlockSize uint) bool {
	_, ok := bpb.SanityCheck(g, log2BlockSize, []bpb.MediaClass{p.asMediaClass()})
	return ok
}

// SanityCheck reports whether g resembles any profile in this table closely
// enough to be considered a known media geometry (see bpb.SanityCheck). As
// with MatchesGeometry, a false return is never a validation failure — g has
// already been fully validated by bpb.Parse.
func SanityCheck(g *bpb.Geometry, log2BlockSize uint) (Profile, bool) {
	classes := make([]bpb.MediaClass, 0, len(profiles))
	byName := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		classes = append(classes, p.asMediaClass())
		byName[p.Name] = p
	}

	match, ok := bpb.SanityCheck(g, log2BlockSize, classes)
	if !ok {
		return Profile{}, false
	}
	return byName[match.Name], true
}
