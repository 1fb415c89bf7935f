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
package sites_test

import (
	"testing"

	"github.com/grailbio/varsites/pileup"
	"github.com/grailbio/varsites/pileup/consensus"
	"github.com/grailbio/varsites/refalign"
	"github.com/grailbio/varsites/sites"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDict(taxon string, calls map[consensus.Key]consensus.Call) *consensus.Dict {
	return &consensus.Dict{Taxon: taxon, Calls: calls}
}

var site42 = consensus.Key{Contig: "contig7", Pos: 42}

// Four taxa with calls A, A, C, (absent): one missing slot is within the
// default tolerance (4-2), and {A,C} is variable, so the site is retained.
func TestMergeRetainsVariableSite(t *testing.T) {
	taxa := []string{"t1", "t2", "t3", "t4"}
	dicts := map[string]*consensus.Dict{
		"t1": newDict("t1", map[consensus.Key]consensus.Call{site42: pileup.BaseA}),
		"t2": newDict("t2", map[consensus.Key]consensus.Call{site42: pileup.BaseA}),
		"t3": newDict("t3", map[consensus.Key]consensus.Call{site42: pileup.BaseC}),
		"t4": newDict("t4", nil),
	}
	al, err := sites.Merge(taxa, dicts, nil, -1, false)
	require.NoError(t, err)
	require.Equal(t, 1, len(al.Sites))
	s := al.Sites[0]
	assert.Equal(t, site42, s.Key)
	assert.Nil(t, s.Coord)
	assert.Equal(t, []consensus.Call{pileup.BaseA, pileup.BaseA, pileup.BaseC, pileup.NoCall}, s.Calls)
	assert.Equal(t, 1, s.MissingCount())
}

// Same position, but the third taxon also calls A: no variation, dropped.
func TestMergeDropsInvariantSite(t *testing.T) {
	taxa := []string{"t1", "t2", "t3", "t4"}
	dicts := map[string]*consensus.Dict{
		"t1": newDict("t1", map[consensus.Key]consensus.Call{site42: pileup.BaseA}),
		"t2": newDict("t2", map[consensus.Key]consensus.Call{site42: pileup.BaseA}),
		"t3": newDict("t3", map[consensus.Key]consensus.Call{site42: pileup.BaseA}),
		"t4": newDict("t4", nil),
	}
	al, err := sites.Merge(taxa, dicts, nil, -1, false)
	require.NoError(t, err)
	assert.Equal(t, 0, len(al.Sites))
}

func TestMergeMissingThreshold(t *testing.T) {
	taxa := []string{"t1", "t2", "t3"}
	dicts := map[string]*consensus.Dict{
		"t1": newDict("t1", map[consensus.Key]consensus.Call{site42: pileup.BaseA}),
		"t2": newDict("t2", map[consensus.Key]consensus.Call{site42: pileup.BaseG}),
		"t3": newDict("t3", nil),
	}
	// Default threshold (3-2 = 1) tolerates the one missing taxon.
	al, err := sites.Merge(taxa, dicts, nil, -1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, len(al.Sites))

	// An explicit threshold of 0 does not.
	al, err = sites.Merge(taxa, dicts, nil, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 0, len(al.Sites))
}

func TestMergeUnknownTaxon(t *testing.T) {
	dicts := map[string]*consensus.Dict{
		"t1": newDict("t1", nil),
	}
	_, err := sites.Merge([]string{"t1", "ghost"}, dicts, nil, -1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func variablePair(keys ...consensus.Key) map[string]*consensus.Dict {
	a := make(map[consensus.Key]consensus.Call)
	b := make(map[consensus.Key]consensus.Call)
	for _, key := range keys {
		a[key] = pileup.BaseA
		b[key] = pileup.BaseT
	}
	return map[string]*consensus.Dict{
		"t1": newDict("t1", a),
		"t2": newDict("t2", b),
	}
}

func TestMergeOrderingAndRequireReference(t *testing.T) {
	keyB5 := consensus.Key{Contig: "contigB", Pos: 5}
	keyB2 := consensus.Key{Contig: "contigB", Pos: 2}
	keyA9 := consensus.Key{Contig: "contigA", Pos: 9}
	keyA1 := consensus.Key{Contig: "contigA", Pos: 1}
	taxa := []string{"t1", "t2"}
	dicts := variablePair(keyB5, keyB2, keyA9, keyA1)
	// Only contigB is placed on the reference.
	coords := refalign.New(map[string]refalign.Placement{
		"contigB": {RefName: "chr1", Start: 101, Strand: pileup.StrandFwd},
	})

	al, err := sites.Merge(taxa, dicts, coords, -1, false)
	require.NoError(t, err)
	require.Equal(t, 4, len(al.Sites))
	// Resolved sites first, by reference position; unresolved after, by
	// native key.
	assert.Equal(t, keyB2, al.Sites[0].Key)
	assert.Equal(t, keyB5, al.Sites[1].Key)
	assert.Equal(t, keyA1, al.Sites[2].Key)
	assert.Equal(t, keyA9, al.Sites[3].Key)
	require.NotNil(t, al.Sites[0].Coord)
	assert.Equal(t, refalign.Coord{RefName: "chr1", Pos: 102, Strand: pileup.StrandFwd}, *al.Sites[0].Coord)
	assert.Nil(t, al.Sites[2].Coord)

	// require-reference excludes the unresolved contigA sites entirely.
	al, err = sites.Merge(taxa, dicts, coords, -1, true)
	require.NoError(t, err)
	require.Equal(t, 2, len(al.Sites))
	assert.Equal(t, keyB2, al.Sites[0].Key)
	assert.Equal(t, keyB5, al.Sites[1].Key)
}

// The merge depends only on the dictionaries' contents, not on the order
// they were built or inserted.
func TestMergeCommutative(t *testing.T) {
	keys := []consensus.Key{
		{Contig: "c1", Pos: 1},
		{Contig: "c2", Pos: 7},
		{Contig: "c0", Pos: 3},
	}
	taxa := []string{"t1", "t2"}

	forward := variablePair(keys...)
	reversed := variablePair(keys[2], keys[1], keys[0])
	al1, err := sites.Merge(taxa, forward, nil, -1, false)
	require.NoError(t, err)
	al2, err := sites.Merge(taxa, reversed, nil, -1, false)
	require.NoError(t, err)
	assert.Equal(t, al1, al2)
}
