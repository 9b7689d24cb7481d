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

package timers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomain_Text(t *testing.T) {
	for _, d := range []Domain{EventTime, ProcessingTime, SynchronizedProcessingTime} {
		text, err := d.MarshalText()
		require.NoError(t, err)
		var parsed Domain
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, d, parsed)
	}
	_, err := UnknownDomain.MarshalText()
	assert.Error(t, err)
	_, err = ParseDomain("WallTime")
	assert.Error(t, err)
	assert.Equal(t, "Unknown", Domain(9).String())
}

func TestTimerData_JSON(t *testing.T) {
	td := TimerData{Key: "K", ID: "x", Domain: SynchronizedProcessingTime, Timestamp: time.UnixMilli(1700000000000).UTC()}
	b, err := json.Marshal(td)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"domain":"SynchronizedProcessingTime"`)
}

func TestTimerData_String(t *testing.T) {
	assert.Equal(t, "K[EventTime/x]@10", timer("K", "x", EventTime, 10).String())
}
