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
package main

/*
bio-varsites calls variable sites across taxa from per-taxon pileup files,
without a reference genome.  Each taxon is reduced to its strict-consensus
base calls; the calls are merged across taxa, filtered to genuinely
variable positions within a missing-data tolerance, and written as a
multi-sequence alignment plus a coordinate listing.  Optional contig
placement reports (one per aligner) attach reference-genome coordinates to
sites whose contigs every aligner places identically.
*/

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/varsites/sites"
)

var (
	minRead     = flag.Int("min-read", sites.DefaultOpts.MinDepth, "Minimum read depth for a position to be callable within a taxon")
	missing     = flag.Int("missing", sites.DefaultOpts.MissingThreshold, "Maximum number of taxa without a call at a retained site; -1 = taxon count minus 2")
	requireRef  = flag.Bool("require-reference", sites.DefaultOpts.RequireReference, "Drop sites whose contig has no agreed reference placement")
	refAlign    = flag.String("ref-align", "", "Comma-separated contig placement reports, one per aligner; a contig resolves only if all reports agree")
	minAlignQ   = flag.Int("min-align-qual", sites.DefaultOpts.MinAlignQual, "Placements with alignment quality below this are treated as unmapped")
	outPrefix   = flag.String("out", "bio-varsites", "Output path prefix")
	parallelism = flag.Int("parallelism", 0, "Maximum number of simultaneous taxon workers; 0 = runtime.NumCPU()")
	gap         = flag.String("gap", "-", "Gap character rendered for missing calls")
	compressOut = flag.Bool("compress", false, "gzip the alignment FASTA and bgzip the coordinate TSV")
	dictOutDir  = flag.String("dict-out", "", "Directory to write per-taxon dictionary caches (.rio) to; reusable as inputs")
)

func bioVarsitesUsage() {
	fmt.Printf("Usage: %s [OPTIONS] [taxon=]pileup-path...\n", os.Args[0])
	fmt.Printf("Each positional argument is one taxon's pileup file (.gz ok) or a cached\n")
	fmt.Printf(".rio dictionary; the taxon name defaults to the file's base name.\n")
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// taxonName derives a taxon name from a pileup path: base name, minus a .gz
// suffix and one inner extension.
func taxonName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	if ext := filepath.Ext(base); ext != "" {
		base = base[:len(base)-len(ext)]
	}
	return base
}

func parseInputs(args []string) []sites.Input {
	inputs := make([]sites.Input, 0, len(args))
	for _, arg := range args {
		var in sites.Input
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			in = sites.Input{Taxon: arg[:eq], Path: arg[eq+1:]}
		} else {
			in = sites.Input{Taxon: taxonName(arg), Path: arg}
		}
		inputs = append(inputs, in)
	}
	return inputs
}

func main() {
	flag.Usage = bioVarsitesUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() < 2 {
		log.Fatalf("At least two taxon pileup paths required; got %d positional argument(s)", flag.NArg())
	}
	if len(*gap) != 1 {
		log.Fatalf("-gap must be a single character, got %q", *gap)
	}
	var refAlignPaths []string
	if *refAlign != "" {
		refAlignPaths = strings.Split(*refAlign, ",")
	}
	ctx := vcontext.Background()
	opts := sites.Opts{
		MinDepth:         *minRead,
		MissingThreshold: *missing,
		RequireReference: *requireRef,
		MinAlignQual:     *minAlignQ,
		Parallelism:      *parallelism,
		Gap:              (*gap)[0],
		Compress:         *compressOut,
		DictOutDir:       *dictOutDir,
	}
	if err := sites.Run(ctx, parseInputs(flag.Args()), refAlignPaths, *outPrefix, &opts); err != nil {
		log.Panicf("%v", err)
	}
	log.Debug.Printf("exiting")
}
