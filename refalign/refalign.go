// Package refalign resolves assembled-contig coordinates against a
// reference genome, using contig-placement reports produced by external
// aligners.  Each report is tab-separated text, one placement per line:
//
//   contig \t refName \t refStart(1-based) \t strand(+/-) \t quality
//
// Lines starting with '#' or '@' are ignored.  When more than one report is
// supplied (e.g. the same contigs mapped with two independent aligners), a
// contig resolves only if every report places it identically; this
// cross-check guards against single-aligner misplacement.  An unresolved
// contig is not an error: its positions are simply reported without genome
// coordinates.
package refalign

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/varsites/pileup"
	"github.com/pkg/errors"
)

// Placement locates one contig on the reference genome.
type Placement struct {
	RefName string
	// Start is the 1-based reference position of the contig's first base.
	Start  pileup.PosType
	Strand pileup.StrandType
}

// Coord is a resolved reference-genome coordinate.
type Coord struct {
	RefName string
	Pos     pileup.PosType // 1-based
	Strand  pileup.StrandType
}

// Opts configures report parsing.
type Opts struct {
	// MinAlignQual drops placements whose alignment quality is below this
	// value; a dropped placement behaves as if the aligner had not mapped
	// the contig at all.
	MinAlignQual int
}

// DefaultOpts are also the bio-varsites flag defaults.
var DefaultOpts = Opts{}

// Map translates contig coordinates into reference coordinates.  A nil
// *Map means no reference genome was supplied; Resolve on it always reports
// unresolved.
type Map struct {
	placements map[string]Placement
}

const nRecordCols = 5

// ReadRecords parses one aligner's contig-placement report into a
// contig -> Placement map.  A contig the aligner reports twice with
// conflicting placements is ambiguous and treated as unmapped.
func ReadRecords(ctx context.Context, path string, opts Opts) (placements map[string]Placement, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()

	placements = make(map[string]Placement)
	ambiguous := make(map[string]bool)
	scanner := bufio.NewScanner(reader)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' || line[0] == '@' {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != nRecordCols {
			return nil, errors.Errorf("%s:%d: %d fields, want %d", path, lineNum, len(fields), nRecordCols)
		}
		start, e := strconv.ParseInt(fields[2], 10, 32)
		if e != nil || start <= 0 {
			return nil, errors.Errorf("%s:%d: bad reference start %q", path, lineNum, fields[2])
		}
		if len(fields[3]) != 1 {
			return nil, errors.Errorf("%s:%d: bad strand %q", path, lineNum, fields[3])
		}
		strand, ok := pileup.ParseStrand(fields[3][0])
		if !ok || strand == pileup.StrandNone {
			return nil, errors.Errorf("%s:%d: bad strand %q", path, lineNum, fields[3])
		}
		qual, e := strconv.Atoi(fields[4])
		if e != nil {
			return nil, errors.Errorf("%s:%d: bad alignment quality %q", path, lineNum, fields[4])
		}
		if qual < opts.MinAlignQual {
			continue
		}
		contig := fields[0]
		p := Placement{
			RefName: fields[1],
			Start:   pileup.PosType(start),
			Strand:  strand,
		}
		if prev, seen := placements[contig]; seen && prev != p {
			ambiguous[contig] = true
			continue
		}
		placements[contig] = p
	}
	if e := scanner.Err(); e != nil {
		return nil, errors.Wrapf(e, "couldn't read alignment report %s", path)
	}
	for contig := range ambiguous {
		delete(placements, contig)
	}
	if len(ambiguous) != 0 {
		log.Printf("refalign.ReadRecords: %s: %d contig(s) with conflicting placements treated as unmapped", path, len(ambiguous))
	}
	return placements, nil
}

// New intersects the supplied placement sets: a contig is kept iff every
// set maps it and all sets agree on the placement.
func New(sources ...map[string]Placement) *Map {
	if len(sources) == 0 {
		return &Map{placements: map[string]Placement{}}
	}
	merged := make(map[string]Placement, len(sources[0]))
	for contig, p := range sources[0] {
		agree := true
		for _, other := range sources[1:] {
			if q, ok := other[contig]; !ok || q != p {
				agree = false
				break
			}
		}
		if agree {
			merged[contig] = p
		}
	}
	return &Map{placements: merged}
}

// Load reads every report in paths and intersects them via New.  Returns
// nil when paths is empty, in which case coordinate resolution is a no-op
// and contigs retain their native ordering.
func Load(ctx context.Context, paths []string, opts Opts) (*Map, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	sources := make([]map[string]Placement, len(paths))
	for i, path := range paths {
		var err error
		if sources[i], err = ReadRecords(ctx, path, opts); err != nil {
			return nil, err
		}
	}
	m := New(sources...)
	log.Printf("refalign.Load: %d source(s), %d contig(s) resolved", len(paths), len(m.placements))
	return m, nil
}

// NumContigs returns the number of resolvable contigs.
func (m *Map) NumContigs() int {
	if m == nil {
		return 0
	}
	return len(m.placements)
}

// Resolve translates a 1-based contig position to a reference coordinate.
// ok is false if the contig is unmapped, was filtered, or the sources
// disagreed on it.
//
// The placement reports carry no contig lengths, so a reverse-strand
// placement projects positions the same way as a forward one; the strand is
// carried through for downstream interpretation.
func (m *Map) Resolve(contig string, pos pileup.PosType) (Coord, bool) {
	if m == nil {
		return Coord{}, false
	}
	p, ok := m.placements[contig]
	if !ok {
		return Coord{}, false
	}
	return Coord{
		RefName: p.RefName,
		Pos:     p.Start + pos - 1,
		Strand:  p.Strand,
	}, true
}
