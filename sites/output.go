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
	"bufio"
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/varsites/pileup"
	"github.com/klauspost/compress/gzip"
)

// The emitter writes two parallel artifacts for output prefix P:
//   P.fa         one aligned sequence per taxon, fixed taxon order
//   P.coords.tsv one row per alignment column, same order as the columns
// With compression enabled the FASTA is gzipped and the TSV is bgzipped
// (bgzf keeps the TSV tabix-indexable).

// WriteAlignment serializes al under outPrefix.  gap is the character
// rendered for a missing call.
func WriteAlignment(ctx context.Context, al *Alignment, outPrefix string, gap byte, compress bool, parallelism int) (err error) {
	if err = writeFasta(ctx, al, outPrefix, gap, compress); err != nil {
		return err
	}
	return writeCoords(ctx, al, outPrefix, compress, parallelism)
}

func writeFasta(ctx context.Context, al *Alignment, outPrefix string, gap byte, compress bool) (err error) {
	faPath := outPrefix + ".fa"
	if compress {
		faPath = faPath + ".gz"
	}
	var dst file.File
	if dst, err = file.Create(ctx, faPath); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, dst, &err)

	var w io.Writer = dst.Writer(ctx)
	var gzWriter *gzip.Writer
	if compress {
		gzWriter = gzip.NewWriter(w)
		w = gzWriter
		defer func() {
			if e := gzWriter.Close(); e != nil && err == nil {
				err = e
			}
		}()
	}
	bw := bufio.NewWriter(w)
	row := make([]byte, len(al.Sites))
	for ti, taxon := range al.Taxa {
		if _, err = bw.WriteString(">" + taxon + "\n"); err != nil {
			return err
		}
		for si := range al.Sites {
			call := al.Sites[si].Calls[ti]
			if call == pileup.NoCall {
				row[si] = gap
			} else {
				row[si] = pileup.EnumToASCIITable[call]
			}
		}
		if _, err = bw.Write(row); err != nil {
			return err
		}
		if err = bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeCoords(ctx context.Context, al *Alignment, outPrefix string, compress bool, parallelism int) (err error) {
	tsvPath := outPrefix + ".coords.tsv"
	if compress {
		tsvPath = tsvPath + ".gz"
	}
	var dst file.File
	if dst, err = file.Create(ctx, tsvPath); err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, dst, &err)

	var outTSV *tsv.Writer
	if !compress {
		outTSV = tsv.NewWriter(dst.Writer(ctx))
	} else {
		bgzfWriter := bgzf.NewWriter(dst.Writer(ctx), parallelism)
		outTSV = tsv.NewWriter(bgzfWriter)
		defer func() {
			if e := bgzfWriter.Close(); e != nil && err == nil {
				err = e
			}
		}()
	}
	outTSV.WriteString("#CONTIG\tPOS\tCHROM\tCHROM_POS\tSTRAND")
	if err = outTSV.EndLine(); err != nil {
		return err
	}
	for i := range al.Sites {
		s := &al.Sites[i]
		outTSV.WriteString(s.Key.Contig)
		outTSV.WriteUint32(uint32(s.Key.Pos))
		if s.Coord != nil {
			outTSV.WriteString(s.Coord.RefName)
			outTSV.WriteUint32(uint32(s.Coord.Pos))
			outTSV.WriteByte(pileup.StrandTypeToASCIITable[s.Coord.Strand])
		} else {
			outTSV.WriteByte('.')
			outTSV.WriteByte('.')
			outTSV.WriteByte('.')
		}
		if err = outTSV.EndLine(); err != nil {
			return err
		}
	}
	return outTSV.Flush()
}
