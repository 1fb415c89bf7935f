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
package pileup

import (
	"math"
)

// Types and tables shared by the pileup-text components.

// PosType is the integer type used to represent genomic positions.
type PosType = int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// These constants are the natural values for A/C/G/T in a packed 2-bit
// representation (useful anywhere we don't have to worry about Ns), with
// BaseX covering everything that can never be part of a consensus call:
// N, deletion placeholders, and reference skips.

const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX as well as the regular base types.
	NBaseEnum = 5
)

// NoCall is the Call value reserved for "no consensus call".  It is
// distinct from BaseX: a stored BaseX can never occur (dictionaries hold
// A/C/G/T only), while NoCall marks an empty per-taxon slot in a merged
// site.
const NoCall byte = 0xff

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// asciiToEnumTable maps pileup-text base characters (both strand cases) to
// A/C/G/T/X enums; 0xff marks bytes that are not base characters at all.
var asciiToEnumTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = 0xff
	}
	for e, c := range EnumToASCIITable {
		t[c] = byte(e)
		t[c|0x20] = byte(e) // lower case marks the reverse strand
	}
	return t
}()

// CharToEnum maps one pileup-text base character to its A/C/G/T/X enum,
// collapsing strand case.  ok is false if c is not a base character.
func CharToEnum(c byte) (enum byte, ok bool) {
	enum = asciiToEnumTable[c]
	return enum, enum != 0xff
}

// StrandType describes which reference-genome strand a contig is placed on.
type StrandType int

const (
	// StrandNone means no placement, or a placement without strand
	// information.
	StrandNone StrandType = iota
	// StrandFwd is a forward-strand placement.
	StrandFwd
	// StrandRev is a reverse-strand placement.
	StrandRev
)

// StrandTypeToASCIITable is the StrandType -> ASCII mapping.
var StrandTypeToASCIITable = [...]byte{'.', '+', '-'}

// ParseStrand converts a strand column character to a StrandType.
func ParseStrand(c byte) (StrandType, bool) {
	switch c {
	case '+':
		return StrandFwd, true
	case '-':
		return StrandRev, true
	case '.':
		return StrandNone, true
	}
	return StrandNone, false
}
