/*
Copyright 2022 The Numaproj Authors.

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

package replay

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/numaproj/timerflow/pkg/timers"
)

// Scenario is a scripted sequence of clock moves, watermark advances and units of work.
type Scenario struct {
	Name  string `json:"name"`
	Stage string `json:"stage,omitempty"`
	// Start is the initial processing time in epoch milliseconds.
	Start int64  `json:"start"`
	Steps []Step `json:"steps"`
}

// Step carries exactly one action. Instants are epoch milliseconds.
type Step struct {
	AdvanceClock        *int64      `json:"advanceClock,omitempty"`
	AdvanceInput        *int64      `json:"advanceInput,omitempty"`
	AdvanceOutput       *int64      `json:"advanceOutput,omitempty"`
	AdvanceSynchronized *int64      `json:"advanceSynchronized,omitempty"`
	Set                 []TimerSpec `json:"set,omitempty"`
	Delete              []TimerSpec `json:"delete,omitempty"`
	Fire                *FireSpec   `json:"fire,omitempty"`
}

type TimerSpec struct {
	Key       string        `json:"key"`
	ID        string        `json:"id"`
	Domain    timers.Domain `json:"domain"`
	Timestamp int64         `json:"timestamp,omitempty"`
}

func (s TimerSpec) timer() timers.TimerData {
	t := timers.TimerData{Key: s.Key, ID: s.ID, Domain: s.Domain}
	if s.Timestamp != 0 {
		t.Timestamp = time.UnixMilli(s.Timestamp).UTC()
	}
	return t
}

// FireSpec fires the eligible timers of Key, or of every key when Key is empty. Rearm timers are
// set by the first fired timer of their key.
type FireSpec struct {
	Key   string      `json:"key,omitempty"`
	Rearm []TimerSpec `json:"rearm,omitempty"`
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.AdvanceClock != nil,
		s.AdvanceInput != nil,
		s.AdvanceOutput != nil,
		s.AdvanceSynchronized != nil,
		len(s.Set) > 0,
		len(s.Delete) > 0,
		s.Fire != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Validate checks the shape of the scenario. Malformed timers are not rejected here; they are
// replayed and show up as rejected units of work.
func (sc *Scenario) Validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	for i, s := range sc.Steps {
		if n := s.actions(); n != 1 {
			return fmt.Errorf("step %d has %d actions, expected exactly one", i+1, n)
		}
	}
	return nil
}

// ParseScenario decodes a YAML scenario. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.UnmarshalStrict(data, sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if sc.Stage == "" {
		sc.Stage = "replay"
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", sc.Name, err)
	}
	return sc, nil
}

// LoadScenario reads and parses the scenario file at path.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	return ParseScenario(data)
}
