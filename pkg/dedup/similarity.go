/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dedup

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Similarity scores how alike two normalized titles are, on [0, 1].
// SimHash is the default; Jaccard is the fallback when a deployment
// wants a dependency-free similarity pass (original source's own
// fallback when the optional simhash package was unavailable).
type Similarity interface {
	Score(titleA, titleB string) float64
}

// SimHash64 implements a 64-bit SimHash over normalized title tokens,
// comparing by Hamming distance converted to a similarity fraction.
type SimHash64 struct{}

func simhash(title string) uint64 {
	var v [64]int
	for _, tok := range strings.Fields(title) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				v[i]++
			} else {
				v[i]--
			}
		}
	}
	var out uint64
	for i := 0; i < 64; i++ {
		if v[i] > 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// Score returns 1 - (hamming_distance / 64), mirroring the original's
// SimHash-based similarity conversion.
func (SimHash64) Score(titleA, titleB string) float64 {
	a, b := simhash(titleA), simhash(titleB)
	distance := bits.OnesCount64(a ^ b)
	return 1 - float64(distance)/64
}

// Jaccard scores token-set overlap: |A∩B| / |A∪B|.
type Jaccard struct{}

func (Jaccard) Score(titleA, titleB string) float64 {
	a, b := titleTokens(titleA), titleTokens(titleB)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var intersection int
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
