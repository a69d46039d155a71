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
	"strconv"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// Result is the outcome of one Deduplicate call: the surviving items in
// their original relative order, plus an explanatory cluster per merge.
type Result struct {
	Kept     []types.RawItem
	Removed  int
	Clusters []types.DedupCluster
}

// Deduplicator runs the three stages in fixed precedence: URL exact
// match, then content hash, then title similarity. Earlier stages never
// see items already merged by a later one, and a later stage never
// reconsiders a merge an earlier stage already made.
type Deduplicator struct {
	SimilarityThreshold float64
	Similarity          Similarity
}

// New builds a Deduplicator. impl selects "jaccard" explicitly;
// anything else (including "simhash" or "") uses SimHash64, the default
// grounded on the original's preferred (optional-dependency) path.
func New(threshold float64, impl string) *Deduplicator {
	var sim Similarity = SimHash64{}
	if impl == "jaccard" {
		sim = Jaccard{}
	}
	return &Deduplicator{SimilarityThreshold: threshold, Similarity: sim}
}

func itemKey(item types.RawItem) string {
	if item.ExternalID != "" {
		return item.Source + ":" + item.ExternalID
	}
	return item.URL
}

// Deduplicate runs all three stages and returns survivors plus the
// explanatory clusters describing every merge made along the way.
func (d *Deduplicator) Deduplicate(items []types.RawItem) Result {
	if len(items) == 0 {
		return Result{}
	}
	original := len(items)

	items, urlClusters := d.urlDedup(items)
	items, hashClusters := d.hashDedup(items)
	items, simClusters := d.similarityDedup(items)

	clusters := append(urlClusters, hashClusters...)
	clusters = append(clusters, simClusters...)

	return Result{
		Kept:     items,
		Removed:  original - len(items),
		Clusters: clusters,
	}
}

func (d *Deduplicator) urlDedup(items []types.RawItem) ([]types.RawItem, []types.DedupCluster) {
	seenIdx := make(map[string]int)
	var kept []types.RawItem
	memberURLs := make(map[string][]string)

	for _, item := range items {
		canonical := CanonicalizeURL(item.URL)
		if _, ok := seenIdx[canonical]; ok {
			memberURLs[canonical] = append(memberURLs[canonical], itemKey(item))
			continue
		}
		seenIdx[canonical] = len(kept)
		kept = append(kept, item)
	}

	var clusters []types.DedupCluster
	for canonical, members := range memberURLs {
		repIdx := seenIdx[canonical]
		clusters = append(clusters, types.DedupCluster{
			RepresentativeID: itemKey(kept[repIdx]),
			MemberIDs:        members,
			Method:           types.DedupURLExact,
		})
	}
	return kept, clusters
}

func (d *Deduplicator) hashDedup(items []types.RawItem) ([]types.RawItem, []types.DedupCluster) {
	seenIdx := make(map[string]int)
	var kept []types.RawItem
	memberKeys := make(map[string][]string)

	for _, item := range items {
		hash := ContentHash(item.Title, item.PublishedAt, item.Source)
		if _, ok := seenIdx[hash]; ok {
			memberKeys[hash] = append(memberKeys[hash], itemKey(item))
			continue
		}
		seenIdx[hash] = len(kept)
		kept = append(kept, item)
	}

	var clusters []types.DedupCluster
	for hash, members := range memberKeys {
		repIdx := seenIdx[hash]
		clusters = append(clusters, types.DedupCluster{
			RepresentativeID: itemKey(kept[repIdx]),
			MemberIDs:        members,
			Method:           types.DedupHashMatch,
		})
	}
	return kept, clusters
}

func (d *Deduplicator) similarityDedup(items []types.RawItem) ([]types.RawItem, []types.DedupCluster) {
	if len(items) <= 1 {
		return items, nil
	}

	removed := make(map[int]bool)
	var kept []types.RawItem
	var clusters []types.DedupCluster
	threshold := d.SimilarityThreshold
	if threshold == 0 {
		threshold = 0.85
	}

	for i := range items {
		if removed[i] {
			continue
		}
		memberIDs := []string{}
		titleI := NormalizeTitle(items[i].Title)
		maxScore := 0.0

		for j := i + 1; j < len(items); j++ {
			if removed[j] {
				continue
			}
			titleJ := NormalizeTitle(items[j].Title)
			if titleI == "" || titleJ == "" {
				continue
			}
			score := d.Similarity.Score(titleI, titleJ)
			if score >= threshold {
				memberIDs = append(memberIDs, itemKey(items[j]))
				removed[j] = true
				if score > maxScore {
					maxScore = score
				}
			}
		}

		kept = append(kept, items[i])
		if len(memberIDs) > 0 {
			scoreCopy := maxScore
			clusters = append(clusters, types.DedupCluster{
				RepresentativeID: itemKey(items[i]),
				MemberIDs:        memberIDs,
				Method:           types.DedupSimilarity,
				SimilarityScore:  &scoreCopy,
			})
		}
	}
	return kept, clusters
}

// ClusterID renders a stable, human-debuggable id for a DedupCluster
// built from its position in a run (clusters carry no database id of
// their own; they are observational, not persisted rows).
func ClusterID(runID string, index int) string {
	return runID + "-cluster-" + strconv.Itoa(index)
}
