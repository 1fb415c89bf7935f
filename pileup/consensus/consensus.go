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

// Package consensus reduces samtools-style pileup text into per-taxon
// dictionaries of strict-consensus base calls.
//
// Problem:
// Given one taxon's pileup (one line per covered contig position, with the
// observed base from every covering read), we want the positions where the
// taxon's base identity is fixed without error: enough reads, and all of
// them in agreement.  Those calls are what the cross-taxon merger compares.
//
// The policy is deliberately strict.  A single discordant read among
// thousands disqualifies the position for that taxon; there is no majority
// vote and no quality weighting.  Positions that fail the policy are not
// stored at all, so downstream missing-data accounting sees "has a call"
// vs "has no call" and nothing else.
package consensus

import (
	"github.com/grailbio/varsites/pileup"
)

// Call is the outcome for one taxon at one position: a pileup.BaseA..BaseT
// enum, or pileup.NoCall.
type Call = byte

// Record is one decoded pileup line.  It is reused across lines by the
// streaming parser; copy Bases if you need to retain it.
type Record struct {
	// Contig is the assembled-contig id from column 1.
	Contig string
	// Pos is the 1-based position from column 2.
	Pos pileup.PosType
	// RefBase is the column-3 reference base as an A/C/G/T/X enum.
	RefBase byte
	// Bases holds one A/C/G/T/X enum per covering read, after stripping
	// quality companions, indel payloads, and read start/end markers.
	// len(Bases) always equals the line's reported depth.
	Bases []byte
}

// Depth returns the number of reads covering the record's position.
func (r *Record) Depth() int { return len(r.Bases) }

// CallBase applies the strict-consensus policy to one decoded position:
// NoCall unless at least minDepth reads cover the position and every one of
// them reports the same A/C/G/T identity.  Unanimous N or deletion evidence
// is also NoCall, since a call must be a real base.
func CallBase(rec *Record, minDepth int) Call {
	if len(rec.Bases) < minDepth {
		return pileup.NoCall
	}
	first := rec.Bases[0]
	for _, b := range rec.Bases[1:] {
		if b != first {
			return pileup.NoCall
		}
	}
	if first >= pileup.NBase {
		return pileup.NoCall
	}
	return first
}
