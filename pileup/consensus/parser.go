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
package consensus

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/varsites/pileup"
)

// Pileup text layout (samtools mpileup):
//   contig \t pos(1-based) \t refBase \t depth \t readBases \t quals
// readBases encoding:
//   '.'/',' = forward/reverse reference match
//   letter  = mismatch, upper=forward / lower=reverse strand
//   '^' + mapping-quality byte = read start; '$' = read end
//   '+N'/'-N' followed by N bases = insertion/deletion relative to the
//   next positions (the current position's observation precedes the marker)
//   '*', '>', '<' = deletion placeholder / reference skip

const nPileupCols = 6

// parseLine decodes one pileup line into rec, reusing rec.Bases.  The
// returned error carries no file context; BuildDict adds taxon, path, and
// line number.
func parseLine(line string, rec *Record) error {
	fields := strings.Split(line, "\t")
	if len(fields) != nPileupCols {
		return fmt.Errorf("malformed line: %d fields, want %d", len(fields), nPileupCols)
	}
	pos, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil || pos <= 0 {
		return fmt.Errorf("malformed line: bad position %q", fields[1])
	}
	depth, err := strconv.ParseInt(fields[3], 10, 32)
	if err != nil || depth < 0 {
		return fmt.Errorf("malformed line: bad depth %q", fields[3])
	}
	if len(fields[2]) != 1 {
		return fmt.Errorf("malformed line: bad reference base %q", fields[2])
	}
	refEnum, ok := pileup.CharToEnum(fields[2][0])
	if !ok {
		return fmt.Errorf("malformed line: bad reference base %q", fields[2])
	}

	rec.Contig = fields[0]
	rec.Pos = pileup.PosType(pos)
	rec.RefBase = refEnum
	rec.Bases = rec.Bases[:0]

	baseField := fields[4]
	if depth == 0 {
		// samtools renders uncovered positions with a '*' placeholder column.
		if baseField != "" && baseField != "*" {
			return fmt.Errorf("depth mismatch: depth 0 but read bases %q", baseField)
		}
		return nil
	}
	if baseField == "" {
		return fmt.Errorf("malformed line: empty read-base field at depth %d", depth)
	}
	if rec.Bases, err = decodeBases(baseField, refEnum, rec.Bases); err != nil {
		return err
	}
	if int64(len(rec.Bases)) != depth {
		return fmt.Errorf("depth mismatch: %d decoded bases, depth field says %d", len(rec.Bases), depth)
	}
	return nil
}

// decodeBases appends one A/C/G/T/X enum per read observation in src to
// dst.  Deletion placeholders and reference skips decode as BaseX: they
// count toward depth but can never satisfy the consensus policy.
func decodeBases(src string, refEnum byte, dst []byte) ([]byte, error) {
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '.' || c == ',':
			dst = append(dst, refEnum)
			i++
		case c == '^':
			// '^' is followed by the read's mapping quality; neither byte is
			// an observation.
			if i+1 >= len(src) {
				return dst, fmt.Errorf("malformed line: truncated read-start marker")
			}
			i += 2
		case c == '$':
			i++
		case c == '+' || c == '-':
			i++
			start := i
			for i < len(src) && src[i] >= '0' && src[i] <= '9' {
				i++
			}
			if start == i {
				return dst, fmt.Errorf("malformed line: indel marker %q without length", c)
			}
			runLen, err := strconv.Atoi(src[start:i])
			if err != nil || i+runLen > len(src) {
				return dst, fmt.Errorf("malformed line: truncated indel sequence")
			}
			i += runLen
		case c == '*' || c == '>' || c == '<':
			dst = append(dst, pileup.BaseX)
			i++
		default:
			enum, ok := pileup.CharToEnum(c)
			if !ok {
				return dst, fmt.Errorf("malformed line: unrecognized read-base character %q", c)
			}
			dst = append(dst, enum)
			i++
		}
	}
	return dst, nil
}
