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

// Package output delivers an assembled Digest to a named channel.
// Every concrete output is independent: one channel failing never
// blocks another, and the orchestrator records one DeliveryLog per
// channel per run (spec §4.7).
package output

import (
	"context"
	"fmt"

	"github.com/marketfeed/newsdigest/pkg/types"
)

// Output is one delivery channel. Deliver returns a channel-specific
// reference (a file path, a Slack message timestamp) that gets stamped
// onto the DeliveryLog, or an error if the attempt failed outright.
type Output interface {
	Name() string
	Deliver(ctx context.Context, digest types.Digest) (string, error)
}

// Error wraps a channel delivery failure with the channel name, so
// callers logging or persisting it don't need a type switch per output.
type Error struct {
	Channel string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s output failed: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DeliverAll runs every configured output against the same digest,
// isolating failures per channel (spec §4.7: "channel independence").
// It returns one DeliveryLog-shaped result per output, in the same
// order the outputs were given.
type Result struct {
	Channel    string
	ChannelRef string
	Err        error
}

func DeliverAll(ctx context.Context, outputs []Output, digest types.Digest) []Result {
	results := make([]Result, len(outputs))
	for i, o := range outputs {
		ref, err := o.Deliver(ctx, digest)
		if err != nil {
			err = &Error{Channel: o.Name(), Err: err}
		}
		results[i] = Result{Channel: o.Name(), ChannelRef: ref, Err: err}
	}
	return results
}
