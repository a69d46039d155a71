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

package llm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/marketfeed/newsdigest/internal/errkind"
)

// Constructor builds a Provider from resolved settings. Registered by
// name at startup by each concrete provider's package init.
type Constructor func(opts Options) (Provider, error)

// Options bundles everything a concrete provider constructor needs; not
// every field applies to every provider.
type Options struct {
	APIKey     string
	Model      string
	BaseURL    string // ollama base url / custom gemini endpoint
	PromptsDir string
	PromptVer  string
	Log        *logrus.Logger
}

var registry = map[string]Constructor{}

// Register adds a named provider constructor. Called from each
// concrete provider file's init() so the registry is populated purely
// by the package's own initialization — no central switch statement to
// keep in sync (spec §4.5: "providers self-register at startup").
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// Create builds the named provider, or a ProviderConfigMissing error if
// the name is unregistered or the constructor rejects the supplied
// options (e.g. a missing API key). The orchestrator distinguishes the
// two: an unregistered name is a fatal startup config error, while a
// registered-but-unusable provider degrades the run to no-AI mode.
func Create(name string, opts Options) (Provider, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, &errkind.ProviderConfigMissing{Provider: name, Reason: fmt.Sprintf("unknown provider, registered: %v", ListProviders())}
	}
	return ctor(opts)
}

// ListProviders returns every registered provider name.
func ListProviders() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
