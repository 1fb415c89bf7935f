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
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/varsites/pileup"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		contig  string
		pos     pileup.PosType
		refBase byte
		bases   []byte
		wantErr string
	}{
		{
			name:    "ref_match_both_strands",
			line:    "contig1\t10\tA\t4\t..,,\tIIII",
			contig:  "contig1",
			pos:     10,
			refBase: pileup.BaseA,
			bases:   []byte{pileup.BaseA, pileup.BaseA, pileup.BaseA, pileup.BaseA},
		},
		{
			name:    "mismatches_case_collapsed",
			line:    "contig1\t10\tA\t5\t..TtN\tIIIII",
			contig:  "contig1",
			pos:     10,
			refBase: pileup.BaseA,
			bases:   []byte{pileup.BaseA, pileup.BaseA, pileup.BaseT, pileup.BaseT, pileup.BaseX},
		},
		{
			name:    "read_start_and_end_markers",
			line:    "c\t3\tG\t3\t^I..$,\tIII",
			contig:  "c",
			pos:     3,
			refBase: pileup.BaseG,
			bases:   []byte{pileup.BaseG, pileup.BaseG, pileup.BaseG},
		},
		{
			// '^' can be followed by any quality byte, including bytes that
			// look like markers themselves.
			name:    "read_start_quality_is_opaque",
			line:    "c\t3\tG\t2\t^$.^+.\tII",
			contig:  "c",
			pos:     3,
			refBase: pileup.BaseG,
			bases:   []byte{pileup.BaseG, pileup.BaseG},
		},
		{
			name:    "indel_payloads_discarded",
			line:    "c\t5\tT\t3\t.+2AG.-1c,\tIII",
			contig:  "c",
			pos:     5,
			refBase: pileup.BaseT,
			bases:   []byte{pileup.BaseT, pileup.BaseT, pileup.BaseT},
		},
		{
			name:    "multidigit_indel_length",
			line:    "c\t5\tT\t2\t.+12AAAAAAAAAAAA,\tII",
			contig:  "c",
			pos:     5,
			refBase: pileup.BaseT,
			bases:   []byte{pileup.BaseT, pileup.BaseT},
		},
		{
			name:    "deletion_and_refskip_count_toward_depth",
			line:    "c\t7\tC\t4\t..*>\tIIII",
			contig:  "c",
			pos:     7,
			refBase: pileup.BaseC,
			bases:   []byte{pileup.BaseC, pileup.BaseC, pileup.BaseX, pileup.BaseX},
		},
		{
			name:    "reference_n",
			line:    "c\t2\tN\t3\t..a\tIII",
			contig:  "c",
			pos:     2,
			refBase: pileup.BaseX,
			bases:   []byte{pileup.BaseX, pileup.BaseX, pileup.BaseA},
		},
		{
			name:    "zero_depth_placeholder",
			line:    "c\t4\tN\t0\t*\t*",
			contig:  "c",
			pos:     4,
			refBase: pileup.BaseX,
			bases:   []byte{},
		},
		{
			name:    "depth_mismatch",
			line:    "c\t9\tA\t5\t....\tIIIII",
			wantErr: "depth mismatch",
		},
		{
			name:    "wrong_field_count",
			line:    "c\t9\tA\t4\t....",
			wantErr: "malformed line",
		},
		{
			name:    "nonnumeric_position",
			line:    "c\tx9\tA\t1\t.\tI",
			wantErr: "bad position",
		},
		{
			name:    "nonnumeric_depth",
			line:    "c\t9\tA\txx\t.\tI",
			wantErr: "bad depth",
		},
		{
			name:    "empty_bases_at_positive_depth",
			line:    "c\t9\tA\t2\t\tII",
			wantErr: "empty read-base field",
		},
		{
			name:    "unrecognized_base_character",
			line:    "c\t1\tA\t2\t.q\tII",
			wantErr: "unrecognized read-base character",
		},
		{
			name:    "truncated_indel",
			line:    "c\t1\tA\t2\t.+5A\tII",
			wantErr: "truncated indel",
		},
		{
			name:    "indel_without_length",
			line:    "c\t1\tA\t2\t.+A\tII",
			wantErr: "without length",
		},
		{
			name:    "truncated_read_start",
			line:    "c\t1\tA\t1\t.^\tI",
			wantErr: "truncated read-start",
		},
		{
			name:    "bad_reference_base",
			line:    "c\t1\tQ\t1\t.\tI",
			wantErr: "bad reference base",
		},
	}
	for _, test := range tests {
		var rec Record
		err := parseLine(test.line, &rec)
		if test.wantErr != "" {
			expect.True(t, err != nil, "%s: expected an error", test.name)
			if err != nil {
				expect.True(t, strings.Contains(err.Error(), test.wantErr), "%s: error %q does not mention %q", test.name, err.Error(), test.wantErr)
			}
			continue
		}
		assert.NoError(t, err, "%s", test.name)
		expect.EQ(t, rec.Contig, test.contig, "%s", test.name)
		expect.EQ(t, rec.Pos, test.pos, "%s", test.name)
		expect.EQ(t, rec.RefBase, test.refBase, "%s", test.name)
		expect.EQ(t, append([]byte{}, rec.Bases...), test.bases, "%s", test.name)
		expect.EQ(t, rec.Depth(), len(test.bases), "%s", test.name)
	}
}

func TestParseLineReusesBases(t *testing.T) {
	var rec Record
	assert.NoError(t, parseLine("c\t1\tA\t3\t...\tIII", &rec))
	expect.EQ(t, rec.Depth(), 3)
	assert.NoError(t, parseLine("c\t2\tT\t1\t,\tI", &rec))
	expect.EQ(t, rec.Depth(), 1)
	expect.EQ(t, rec.Bases[0], pileup.BaseT)
}

func TestCallBase(t *testing.T) {
	tests := []struct {
		name     string
		bases    []byte
		minDepth int
		want     Call
	}{
		{
			name:     "unanimous",
			bases:    []byte{pileup.BaseA, pileup.BaseA, pileup.BaseA},
			minDepth: 3,
			want:     pileup.BaseA,
		},
		{
			name:     "below_min_depth",
			bases:    []byte{pileup.BaseA, pileup.BaseA},
			minDepth: 3,
			want:     pileup.NoCall,
		},
		{
			// One discordant read among many is enough to disqualify: the
			// policy is strict consensus, not majority vote.
			name:     "single_discordant_read",
			bases:    append(bytesOf(pileup.BaseG, 999), pileup.BaseC),
			minDepth: 3,
			want:     pileup.NoCall,
		},
		{
			name:     "unanimous_n",
			bases:    []byte{pileup.BaseX, pileup.BaseX, pileup.BaseX},
			minDepth: 3,
			want:     pileup.NoCall,
		},
		{
			name:     "no_coverage",
			bases:    nil,
			minDepth: 1,
			want:     pileup.NoCall,
		},
	}
	for _, test := range tests {
		rec := Record{Contig: "c", Pos: 1, RefBase: pileup.BaseA, Bases: test.bases}
		expect.EQ(t, CallBase(&rec, test.minDepth), test.want, "%s", test.name)
	}
}

func bytesOf(b byte, n int) []byte {
	s := make([]byte, n)
	for i := range s {
		s[i] = b
	}
	return s
}
