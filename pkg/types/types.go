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

// Package types holds the entities shared across the ingestion-to-digest
// pipeline: raw collector output, normalized news, AI analysis, dedup
// clusters and the run/delivery bookkeeping records.
package types

import "time"

// SourceType distinguishes a news article from a regulatory filing.
type SourceType string

const (
	SourceTypeNews   SourceType = "news"
	SourceTypeFiling SourceType = "filing"
)

// Credibility is a coarse trust label assigned by the normalizer.
type Credibility string

const (
	CredibilityHigh   Credibility = "high"
	CredibilityMedium Credibility = "medium"
	CredibilityLow    Credibility = "low"
)

// EventType enumerates the kinds of market-moving events the LLM may
// classify a news item as.
type EventType string

const (
	EventEarnings   EventType = "earnings"
	EventGuidance   EventType = "guidance"
	EventRegulatory EventType = "regulatory"
	EventContract   EventType = "contract"
	EventProduct    EventType = "product"
	EventAccident   EventType = "accident"
	EventMacro      EventType = "macro"
	EventRumor      EventType = "rumor"
	EventOther      EventType = "other"
)

// ImpactDirection is the LLM's directional call on market impact.
type ImpactDirection string

const (
	ImpactBullish ImpactDirection = "bullish"
	ImpactBearish ImpactDirection = "bearish"
	ImpactNeutral ImpactDirection = "neutral"
)

// ImpactHorizon is how far out the impact is expected to play out.
type ImpactHorizon string

const (
	HorizonShort  ImpactHorizon = "short"
	HorizonMedium ImpactHorizon = "medium"
	HorizonLong   ImpactHorizon = "long"
)

// ThesisRelation captures whether an item supports or weakens the
// per-ticker investment thesis it was analyzed against.
type ThesisRelation string

const (
	ThesisSupports  ThesisRelation = "supports"
	ThesisWeakens   ThesisRelation = "weakens"
	ThesisUnrelated ThesisRelation = "unrelated"
)

// Confidence is the LLM's self-reported confidence in its classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// DedupMethod records which dedup stage merged a pair of items.
type DedupMethod string

const (
	DedupURLExact    DedupMethod = "url_exact"
	DedupHashMatch   DedupMethod = "hash_match"
	DedupSimilarity  DedupMethod = "similarity"
)

// RunStatus is the PipelineRun state machine: Running -> {Success, Partial, Failed}.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// DeliveryStatus is the DeliveryLog terminal-once state.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryRetrying DeliveryStatus = "retrying"
)

// WatchlistEntry is one user-curated ticker with its investment thesis.
// Owned by the external CRUD API; read-only to the pipeline core.
type WatchlistEntry struct {
	Ticker      string   `json:"ticker" yaml:"ticker" db:"ticker" validate:"required,uppercase,max=10"`
	CompanyName string   `json:"company_name" yaml:"company_name" db:"company_name" validate:"required,max=200"`
	Thesis      string   `json:"thesis" yaml:"thesis" db:"thesis"`
	RiskTags    []string `json:"risk_tags" yaml:"risk_tags" db:"-"`
	Priority    int      `json:"priority" yaml:"priority" db:"priority" validate:"min=1,max=5"`
	Sector      string   `json:"sector,omitempty" yaml:"sector,omitempty" db:"sector"`
}

// RawItem is what a collector hands to the normalizer: immutable once
// written, one-to-one with at most one NewsItem.
type RawItem struct {
	ID         int64                  `json:"id,omitempty" db:"id"`
	Source     string                 `json:"source" db:"source"`
	SourceType SourceType             `json:"source_type" db:"source_type"`
	ExternalID string                 `json:"external_id,omitempty" db:"external_id"`
	URL        string                 `json:"url" db:"url"`
	Title      string                 `json:"title" db:"-"`
	Summary    string                 `json:"summary,omitempty" db:"-"`
	FetchedAt  time.Time              `json:"fetched_at" db:"fetched_at"`
	PublishedAt time.Time             `json:"published_at,omitempty" db:"-"`
	Tickers    []string               `json:"tickers,omitempty" db:"-"`
	RawPayload map[string]interface{} `json:"raw_payload,omitempty" db:"raw_payload"`
}

// NewsItem is the canonical, deduplicated record derived from a RawItem.
type NewsItem struct {
	ID              int64       `json:"id,omitempty" db:"id"`
	RawItemID       int64       `json:"raw_item_id,omitempty" db:"raw_item_id"`
	CanonicalURL    string      `json:"canonical_url" db:"canonical_url"`
	Title           string      `json:"title" db:"title"`
	TitleNormalized string      `json:"title_normalized" db:"title_normalized"`
	ContentHash     string      `json:"content_hash" db:"content_hash"`
	Summary         string      `json:"summary,omitempty" db:"summary"`
	PublishedAt     time.Time   `json:"published_at" db:"published_at"`
	Source          string      `json:"source" db:"source"`
	SourceType      SourceType  `json:"source_type" db:"source_type"`
	Credibility     Credibility `json:"credibility" db:"credibility"`
	Tickers         []string    `json:"tickers" db:"-"`
	// RawPayload carries the originating RawItem's collector-specific
	// fields through to the HTTP control plane, where it is the target
	// of an optional jq filter on GET /news (not persisted on this row;
	// joined in from raw_items at read time).
	RawPayload map[string]interface{} `json:"raw_payload,omitempty" db:"-"`
}

// AnalysisResult is the LLM's classification + summary of one NewsItem.
// Every enum field is restricted to the sets above; length caps are
// enforced at validation time, not merely documented here.
type AnalysisResult struct {
	ID              int64           `json:"id,omitempty" db:"id"`
	NewsItemID      int64           `json:"news_item_id" db:"news_item_id"`
	Provider        string          `json:"provider" db:"provider"`
	Model           string          `json:"model" db:"model"`
	PromptVersion   string          `json:"prompt_version" db:"prompt_version"`
	EventType       EventType       `json:"event_type" validate:"oneof=earnings guidance regulatory contract product accident macro rumor other" db:"event_type"`
	ImpactDirection ImpactDirection `json:"impact_direction" validate:"oneof=bullish bearish neutral" db:"impact_direction"`
	ImpactHorizon   ImpactHorizon   `json:"impact_horizon" validate:"oneof=short medium long" db:"impact_horizon"`
	ThesisRelation  ThesisRelation  `json:"thesis_relation" validate:"oneof=supports weakens unrelated" db:"thesis_relation"`
	Confidence      Confidence      `json:"confidence" validate:"oneof=high medium low" db:"confidence"`
	ConfidenceReason string         `json:"confidence_reason" validate:"max=100" db:"confidence_reason"`
	Summary         string          `json:"summary" validate:"max=100" db:"summary"`
	KeyFacts        []string        `json:"key_facts" validate:"max=3,dive,max=200" db:"-"`
	WatchNext       string          `json:"watch_next" validate:"max=50" db:"watch_next"`
	TokensUsed      int             `json:"tokens_used" db:"tokens_used"`
	CostUSD         float64         `json:"cost_usd" db:"cost_usd"`
}

// DedupCluster is a purely observational record explaining a merge.
type DedupCluster struct {
	ClusterID        string      `json:"cluster_id"`
	RepresentativeID string      `json:"representative_id"`
	MemberIDs        []string    `json:"member_ids"`
	Method           DedupMethod `json:"dedup_method"`
	SimilarityScore  *float64    `json:"similarity_score,omitempty"`
}

// RunCounters are the per-stage tallies the orchestrator updates live.
type RunCounters struct {
	RawCollected    int `json:"raw_collected" db:"raw_collected"`
	AfterNormalize  int `json:"after_normalize" db:"after_normalize"`
	AfterDedup      int `json:"after_dedup" db:"after_dedup"`
	AnalyzedSuccess int `json:"analyzed_success" db:"analyzed_success"`
	AnalyzedFailed  int `json:"analyzed_failed" db:"analyzed_failed"`
	Delivered       int `json:"delivered" db:"delivered"`
}

// PipelineRun is one execution of the orchestrator.
type PipelineRun struct {
	RunID      string    `json:"run_id" db:"run_id"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status     RunStatus `json:"status" db:"status"`
	RunCounters
	ErrorLog string `json:"error_log,omitempty" db:"error_log"`
}

// DeliveryLog tracks one output channel's attempt to deliver a Digest.
// Mutated to a terminal status exactly once.
type DeliveryLog struct {
	ID           int64          `json:"id,omitempty" db:"id"`
	RunID        string         `json:"run_id" db:"run_id"`
	Channel      string         `json:"channel" db:"channel"`
	Status       DeliveryStatus `json:"status" db:"status"`
	ErrorMessage string         `json:"error_message,omitempty" db:"error_message"`
	RetryCount   int            `json:"retry_count" db:"retry_count"`
	ChannelRef   string         `json:"channel_ref,omitempty" db:"channel_ref"`
}

// DigestItem pairs a NewsItem with its (possibly absent) analysis.
// AnalysisFailed distinguishes "analysis was attempted and errored" from
// "no provider was configured, so nothing was attempted" — both leave
// Analysis nil, but only the former counts toward analyzed_failed.
type DigestItem struct {
	News           NewsItem
	Analysis       *AnalysisResult
	AnalysisFailed bool
}

func (d DigestItem) IsAnalyzed() bool { return d.Analysis != nil }

// TickerSummary is the second-pass per-ticker synthesis.
type TickerSummary struct {
	Ticker           string   `json:"ticker"`
	CompanyName      string   `json:"company_name"`
	NewsCount        int      `json:"news_count"`
	OverallSentiment string   `json:"overall_sentiment"`
	Summary          string   `json:"summary"`
	KeyEvents        []string `json:"key_events"`
	ThesisImpact     string   `json:"thesis_impact"`
	ActionSuggestion string   `json:"action_suggestion"`
	RiskAlerts       []string `json:"risk_alerts"`
	BullishCount     int      `json:"bullish_count"`
	BearishCount     int      `json:"bearish_count"`
	NeutralCount     int      `json:"neutral_count"`
}

// Digest is the per-run output bundle handed to outputs.
type Digest struct {
	RunID            string                   `json:"run_id"`
	GeneratedAt      time.Time                `json:"generated_at"`
	WindowStart      time.Time                `json:"window_start"`
	WindowEnd        time.Time                `json:"window_end"`
	Items            []DigestItem             `json:"items"`
	TotalCollected   int                      `json:"total_collected"`
	TotalAfterDedup  int                      `json:"total_after_dedup"`
	TotalAnalyzed    int                      `json:"total_analyzed"`
	TotalFailed      int                      `json:"total_failed"`
	TickerSummaries  map[string]TickerSummary `json:"ticker_summaries"`
}

// HighImpactItems returns items whose analysis has a non-neutral
// impact_direction — the "high-impact query" output renderers use.
func (d Digest) HighImpactItems() []DigestItem {
	out := make([]DigestItem, 0, len(d.Items))
	for _, it := range d.Items {
		if it.Analysis != nil && it.Analysis.ImpactDirection != ImpactNeutral {
			out = append(out, it)
		}
	}
	return out
}

// ByTicker groups digest items by every ticker they are tagged with.
func (d Digest) ByTicker() map[string][]DigestItem {
	out := make(map[string][]DigestItem)
	for _, it := range d.Items {
		for _, t := range it.News.Tickers {
			out[t] = append(out[t], it)
		}
	}
	return out
}
