// Copyright 2021 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sites merges per-taxon consensus dictionaries into an ordered
// matrix of variable sites and renders it as a multi-sequence alignment.
package sites

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/varsites/pileup"
	"github.com/grailbio/varsites/pileup/consensus"
	"github.com/grailbio/varsites/refalign"
)

// Site is one retained alignment column.
type Site struct {
	// Key is the native (contig, position) coordinate.
	Key consensus.Key
	// Coord is the resolved reference coordinate, nil when the contig has
	// no agreed placement.
	Coord *refalign.Coord
	// Calls has one slot per taxon in the run's fixed taxon order;
	// pileup.NoCall marks taxa without a call here.
	Calls []consensus.Call
}

// MissingCount returns the number of taxa without a call at the site.
func (s *Site) MissingCount() int {
	n := 0
	for _, c := range s.Calls {
		if c == pileup.NoCall {
			n++
		}
	}
	return n
}

// Alignment is the terminal artifact of a run: the retained sites in
// output order, plus the taxon order shared by every site's Calls slice.
type Alignment struct {
	Taxa  []string
	Sites []Site
}

// Merge unions the dictionaries' keys, builds a Site per key, and retains
// the sites that are genuinely variable (at least two distinct bases among
// taxa with calls) and within the missing-data tolerance.
//
// missingThreshold < 0 selects the default, len(taxa)-2: a site must have
// calls from at least two taxa, the minimum needed to observe variation at
// all.  requireReference additionally drops sites whose contig has no
// resolved placement.
//
// Output order: resolved sites by (reference name, reference position,
// contig, position), then unresolved sites by (contig, position).  The
// order depends only on the inputs, never on taxon-worker scheduling, so
// reruns are byte-identical.
func Merge(taxa []string, dicts map[string]*consensus.Dict, coords *refalign.Map, missingThreshold int, requireReference bool) (*Alignment, error) {
	for _, taxon := range taxa {
		if dicts[taxon] == nil {
			return nil, errors.E(fmt.Sprintf("sites.Merge: unknown taxon %q: no dictionary for it", taxon))
		}
	}
	if missingThreshold < 0 {
		missingThreshold = len(taxa) - 2
		if missingThreshold < 0 {
			missingThreshold = 0
		}
	}

	keys := make(map[consensus.Key]struct{})
	for _, taxon := range taxa {
		for key := range dicts[taxon].Calls {
			keys[key] = struct{}{}
		}
	}

	retained := make([]Site, 0, len(keys)/8+1)
	for key := range keys {
		var coord *refalign.Coord
		if c, ok := coords.Resolve(key.Contig, key.Pos); ok {
			coord = &c
		}
		if requireReference && coord == nil {
			continue
		}
		calls := make([]consensus.Call, len(taxa))
		missing := 0
		var seen [pileup.NBase]bool
		for i, taxon := range taxa {
			if call, ok := dicts[taxon].Calls[key]; ok {
				calls[i] = call
				seen[call] = true
			} else {
				calls[i] = pileup.NoCall
				missing++
			}
		}
		if missing > missingThreshold {
			continue
		}
		distinct := 0
		for _, s := range seen {
			if s {
				distinct++
			}
		}
		if distinct < 2 {
			continue
		}
		retained = append(retained, Site{Key: key, Coord: coord, Calls: calls})
	}

	sort.Slice(retained, func(i, j int) bool {
		return siteLess(&retained[i], &retained[j])
	})
	log.Printf("sites.Merge: %d taxa, %d candidate positions, %d variable sites retained", len(taxa), len(keys), len(retained))
	return &Alignment{Taxa: taxa, Sites: retained}, nil
}

func siteLess(a, b *Site) bool {
	// Resolved sites sort before unresolved ones.
	if (a.Coord != nil) != (b.Coord != nil) {
		return a.Coord != nil
	}
	if a.Coord != nil {
		if a.Coord.RefName != b.Coord.RefName {
			return a.Coord.RefName < b.Coord.RefName
		}
		if a.Coord.Pos != b.Coord.Pos {
			return a.Coord.Pos < b.Coord.Pos
		}
		// Distinct contigs can map to the same reference coordinate; fall
		// through to the native key so the order stays total.
	}
	if a.Key.Contig != b.Key.Contig {
		return a.Key.Contig < b.Key.Contig
	}
	return a.Key.Pos < b.Key.Pos
}
