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
	"bufio"
	"context"
	"fmt"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/varsites/pileup"
)

// Pileup lines can carry one byte per covering read, so deep positions
// produce long lines.
const maxPileupLineBytes = 1 << 26

// Key identifies one assembled-contig position.
type Key struct {
	Contig string
	Pos    pileup.PosType // 1-based
}

// Dict holds one taxon's consensus calls.  Only positions with a real
// A/C/G/T call are present; a position that was under-covered, discordant,
// or never sequenced is simply absent.  A Dict is built once and read-only
// afterwards.
type Dict struct {
	Taxon string
	Calls map[Key]Call
}

// Opts configures dictionary building.
type Opts struct {
	// MinDepth is the minimum number of covering reads for a position to be
	// callable.
	MinDepth int
}

// DefaultOpts are also the bio-varsites flag defaults.
var DefaultOpts = Opts{
	MinDepth: 3,
}

// BuildDict streams one taxon's pileup file (gz-transparent) and reduces it
// to a Dict.  Any structurally invalid line is fatal: silently skipping a
// line or a taxon would change the missing-data accounting downstream in
// ways invisible to the user.
func BuildDict(ctx context.Context, taxon, path string, opts Opts) (dict *Dict, err error) {
	if opts.MinDepth <= 0 {
		return nil, errors.E(fmt.Sprintf("consensus.BuildDict: MinDepth must be positive, got %d", opts.MinDepth))
	}
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, errors.E(err, fmt.Sprintf("taxon %s", taxon))
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()

	dict = &Dict{
		Taxon: taxon,
		Calls: make(map[Key]Call),
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(nil, maxPileupLineBytes)
	var rec Record
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if e := parseLine(scanner.Text(), &rec); e != nil {
			return nil, errors.E(e, fmt.Sprintf("taxon %s: %s: line %d", taxon, path, lineNum))
		}
		if call := CallBase(&rec, opts.MinDepth); call != pileup.NoCall {
			dict.Calls[Key{Contig: rec.Contig, Pos: rec.Pos}] = call
		}
	}
	if e := scanner.Err(); e != nil {
		return nil, errors.E(e, fmt.Sprintf("taxon %s: %s", taxon, path))
	}
	log.Debug.Printf("consensus.BuildDict: taxon %s: %d lines, %d calls", taxon, lineNum, len(dict.Calls))
	return dict, nil
}
