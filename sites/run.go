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
package sites

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/varsites/pileup/consensus"
	"github.com/grailbio/varsites/refalign"
)

// Opts holds the full configuration of a variable-site run.
type Opts struct {
	// Commandline options.
	MinDepth         int
	MissingThreshold int // -1 = number of taxa minus 2
	RequireReference bool
	MinAlignQual     int
	Parallelism      int
	Gap              byte
	Compress         bool
	DictOutDir       string
}

var DefaultOpts = Opts{
	MinDepth:         3,
	MissingThreshold: -1,
	RequireReference: false,
	MinAlignQual:     0,
	Parallelism:      0,
	Gap:              '-',
	Compress:         false,
	DictOutDir:       "",
}

// Input names one taxon's pileup file.  A path ending in .rio is loaded as
// a cached dictionary (see consensus.WriteDictFile) instead of being parsed
// as pileup text.
type Input struct {
	Taxon string
	Path  string
}

// Run executes the whole pipeline: per-taxon dictionary building fans out
// across workers (the coordinate resolver, which shares no state with
// them, runs alongside), the merge starts only after every worker has
// finished, and the alignment is written under outPrefix.
//
// A fatal parse error in any taxon aborts the run: a silently omitted taxon
// would skew the missing-data accounting for every site.
func Run(ctx context.Context, inputs []Input, refAlignPaths []string, outPrefix string, opts *Opts) error {
	if len(inputs) == 0 {
		return errors.E("sites.Run: no taxon inputs")
	}
	taxa := make([]string, len(inputs))
	for i, in := range inputs {
		taxa[i] = in.Taxon
	}
	for i, taxon := range taxa {
		if taxon == "" {
			return errors.E(fmt.Sprintf("sites.Run: empty taxon name for input %s", inputs[i].Path))
		}
		for j := 0; j < i; j++ {
			if taxa[j] == taxon {
				return errors.E(fmt.Sprintf("sites.Run: duplicate taxon name %q", taxon))
			}
		}
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(inputs) {
		parallelism = len(inputs)
	}

	dictOpts := consensus.Opts{MinDepth: opts.MinDepth}
	dictSlots := make([]*consensus.Dict, len(inputs))
	var coordMap *refalign.Map

	// One extra job for the resolver when reference alignments were
	// supplied; coordMap is written by that job only and read after the
	// join.
	nJobs := parallelism
	if len(refAlignPaths) > 0 {
		nJobs++
	}
	log.Printf("sites.Run: building %d taxon dictionaries (%d workers)", len(inputs), parallelism)
	err := traverse.Each(nJobs, func(jobIdx int) error {
		if jobIdx == parallelism {
			var e error
			coordMap, e = refalign.Load(ctx, refAlignPaths, refalign.Opts{MinAlignQual: opts.MinAlignQual})
			return e
		}
		startIdx := (jobIdx * len(inputs)) / parallelism
		endIdx := ((jobIdx + 1) * len(inputs)) / parallelism
		for i := startIdx; i < endIdx; i++ {
			dict, e := buildOrLoadDict(ctx, inputs[i], dictOpts)
			if e != nil {
				return e
			}
			if opts.DictOutDir != "" {
				dictPath := file.Join(opts.DictOutDir, dict.Taxon+".rio")
				if e = consensus.WriteDictFile(ctx, dict, dictPath); e != nil {
					return e
				}
			}
			dictSlots[i] = dict
		}
		return nil
	})
	if err != nil {
		return err
	}

	dicts := make(map[string]*consensus.Dict, len(inputs))
	for i, taxon := range taxa {
		dicts[taxon] = dictSlots[i]
	}
	al, err := Merge(taxa, dicts, coordMap, opts.MissingThreshold, opts.RequireReference)
	if err != nil {
		return err
	}
	if err = WriteAlignment(ctx, al, outPrefix, opts.Gap, opts.Compress, parallelism); err != nil {
		return err
	}
	log.Debug.Printf("sites.Run: wrote %d sites x %d taxa under %s", len(al.Sites), len(al.Taxa), outPrefix)
	return nil
}

func buildOrLoadDict(ctx context.Context, in Input, opts consensus.Opts) (*consensus.Dict, error) {
	if strings.HasSuffix(in.Path, ".rio") {
		dict, err := consensus.ReadDictFile(ctx, in.Path)
		if err != nil {
			return nil, err
		}
		if dict.Taxon != "" && dict.Taxon != in.Taxon {
			return nil, errors.E(fmt.Sprintf("sites.Run: dictionary %s was built for taxon %q, not %q", in.Path, dict.Taxon, in.Taxon))
		}
		dict.Taxon = in.Taxon
		log.Debug.Printf("sites.Run: taxon %s: loaded %d cached calls", in.Taxon, len(dict.Calls))
		return dict, nil
	}
	return consensus.BuildDict(ctx, in.Taxon, in.Path, opts)
}
