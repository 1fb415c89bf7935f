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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/varsites/pileup"
)

// A built Dict can be cached as a zstd-transformed recordio file, so that
// reruns with a different merge configuration skip the pileup reduction.

const (
	taxonHeader       = "Taxon"
	dictTrailerVersion = 1
)

func init() {
	recordiozstd.Init()
}

type dictEntry struct {
	key  Key
	call Call
}

// Serialized format per record:
//   [0..4): contig id byte length n
//   [4..4+n): contig id
//   next 4 bytes: 1-based position
//   next byte: call enum
// All uses are bundled with the zstd transformer, so there is no point in
// varint-packing this.
func marshalDictEntry(scratch []byte, p interface{}) ([]byte, error) {
	ent := p.(*dictEntry)
	bytesReq := 9 + len(ent.key.Contig)
	t := scratch
	if len(t) < bytesReq {
		t = make([]byte, bytesReq)
	}
	t = t[:bytesReq]
	n := len(ent.key.Contig)
	binary.LittleEndian.PutUint32(t[:4], uint32(n))
	copy(t[4:4+n], ent.key.Contig)
	binary.LittleEndian.PutUint32(t[4+n:8+n], uint32(ent.key.Pos))
	t[8+n] = ent.call
	return t, nil
}

func unmarshalDictEntry(in []byte) (out interface{}, err error) {
	if len(in) < 9 {
		return nil, fmt.Errorf("consensus: truncated dictionary record (%d bytes)", len(in))
	}
	n := int(binary.LittleEndian.Uint32(in[:4]))
	if len(in) != 9+n {
		return nil, fmt.Errorf("consensus: dictionary record length %d, want %d", len(in), 9+n)
	}
	ent := &dictEntry{
		key: Key{
			Contig: string(in[4 : 4+n]),
			Pos:    pileup.PosType(binary.LittleEndian.Uint32(in[4+n : 8+n])),
		},
		call: in[8+n],
	}
	return ent, nil
}

func dictRioTrailer(numCalls int) []byte {
	var buffer bytes.Buffer
	if err := binary.Write(&buffer, binary.LittleEndian, int64(dictTrailerVersion)); err != nil {
		panic("couldn't write trailer version")
	}
	if err := binary.Write(&buffer, binary.LittleEndian, int64(numCalls)); err != nil {
		panic("couldn't write numCalls to trailer")
	}
	return buffer.Bytes()
}

func parseDictRioTrailer(trailer []byte) (int64, error) {
	r := bytes.NewReader(trailer)
	var version, numCalls int64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	if version != dictTrailerVersion {
		return 0, fmt.Errorf("unrecognized trailer version: got %d, want %d", version, dictTrailerVersion)
	}
	if err := binary.Read(r, binary.LittleEndian, &numCalls); err != nil {
		return 0, err
	}
	return numCalls, nil
}

// WriteDictRio writes d to out as recordio.  Entries are written in
// (contig, pos) order so identical dictionaries produce identical bytes.
func WriteDictRio(d *Dict, out io.Writer) error {
	recordWriter := recordio.NewWriter(out, recordio.WriterOpts{
		Marshal:      marshalDictEntry,
		Transformers: []string{recordiozstd.Name},
	})
	recordWriter.AddHeader(taxonHeader, d.Taxon)
	recordWriter.AddHeader(recordio.KeyTrailer, true)
	entries := make([]dictEntry, 0, len(d.Calls))
	for key, call := range d.Calls {
		entries = append(entries, dictEntry{key: key, call: call})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].key.Contig != entries[j].key.Contig {
			return entries[i].key.Contig < entries[j].key.Contig
		}
		return entries[i].key.Pos < entries[j].key.Pos
	})
	for i := range entries {
		recordWriter.Append(&entries[i])
	}
	recordWriter.SetTrailer(dictRioTrailer(len(entries)))
	return recordWriter.Finish()
}

// ReadDictRio reads a dictionary written by WriteDictRio.
func ReadDictRio(rs io.ReadSeeker) (*Dict, error) {
	scanner := recordio.NewScanner(rs, recordio.ScannerOpts{
		Unmarshal: unmarshalDictEntry,
	})
	numCalls := int64(0)
	if len(scanner.Trailer()) != 0 {
		var err error
		if numCalls, err = parseDictRioTrailer(scanner.Trailer()); err != nil {
			return nil, err
		}
	}
	d := &Dict{
		Calls: make(map[Key]Call, numCalls),
	}
	for _, kv := range scanner.Header() {
		switch kv.Key {
		case taxonHeader:
			d.Taxon = kv.Value.(string)
			// Cannot reject unrecognized keys since recordio writes its own.
		}
	}
	for scanner.Scan() {
		ent := scanner.Get().(*dictEntry)
		d.Calls[ent.key] = ent.call
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if numCalls != 0 && int64(len(d.Calls)) != numCalls {
		return nil, fmt.Errorf("consensus: dictionary has %d calls, trailer says %d", len(d.Calls), numCalls)
	}
	return d, nil
}

// WriteDictFile writes d to path via WriteDictRio.
func WriteDictFile(ctx context.Context, d *Dict, path string) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return errors.E(err, fmt.Sprintf("taxon %s", d.Taxon))
	}
	defer file.CloseAndReport(ctx, out, &err)
	return WriteDictRio(d, out.Writer(ctx))
}

// ReadDictFile reads a dictionary file written by WriteDictFile.
func ReadDictFile(ctx context.Context, path string) (dict *Dict, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	if dict, err = ReadDictRio(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, path)
	}
	return dict, nil
}
