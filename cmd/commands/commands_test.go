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

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natstest "github.com/numaproj/timerflow/pkg/shared/clients/nats/test"
)

const scenario = `
name: cli
start: 1
steps:
  - set:
      - {key: K, id: x, domain: EventTime, timestamp: 10}
  - advanceInput: 10
  - fire: {}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_Commands(t *testing.T) {
	t.Run("root execute", func(t *testing.T) {
		rootCmd.SetArgs([]string{"help"})
		assert.NotPanics(t, Execute)
	})

	t.Run("test root", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		Execute()
		assert.Contains(t, b.String(), "Available Commands")
		assert.Contains(t, b.String(), "replay")
	})

	t.Run("version", func(t *testing.T) {
		cmd := NewVersionCommand()
		b := bytes.NewBufferString("")
		cmd.SetOut(b)
		cmd.SetArgs([]string{"--short"})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, b.String(), "latest")
	})

	t.Run("replay flags", func(t *testing.T) {
		cmd := NewReplayCommand()
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "string", cmd.Flag("config").Value.Type())
		assert.Equal(t, "int", cmd.Flag("metrics-port").Value.Type())
		assert.Equal(t, "string", cmd.Flag("output").Value.Type())
		cmd.SetArgs([]string{})
		assert.Error(t, cmd.Execute())
	})

	t.Run("replay text", func(t *testing.T) {
		cmd := NewReplayCommand()
		b := bytes.NewBufferString("")
		cmd.SetOut(b)
		cmd.SetArgs([]string{"--output=text", writeFile(t, "scenario.yaml", scenario)})
		require.NoError(t, cmd.Execute())
		assert.Equal(t, "1 set K[EventTime/x]@10\n2 input 10\n3 fired K[EventTime/x]@10\n", b.String())
	})

	t.Run("replay table on pebble", func(t *testing.T) {
		cfg := writeFile(t, "timerflow-config.yaml", "store:\n  backend: pebble\n  pebble:\n    path: "+filepath.Join(t.TempDir(), "db")+"\n")
		cmd := NewReplayCommand()
		b := bytes.NewBufferString("")
		cmd.SetOut(b)
		cmd.SetArgs([]string{"--config", cfg, writeFile(t, "scenario.yaml", scenario)})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, b.String(), "fired")
		assert.Contains(t, b.String(), "K[EventTime/x]@10")
	})

	t.Run("replay table on jetstream", func(t *testing.T) {
		s := natstest.RunJetStreamServer(t)
		cfg := writeFile(t, "timerflow-config.yaml", "store:\n  backend: jetstream\n  jetstream:\n    url: "+s.ClientURL()+"\n    bucket: replay-timers\n")
		cmd := NewReplayCommand()
		b := bytes.NewBufferString("")
		cmd.SetOut(b)
		cmd.SetArgs([]string{"--config", cfg, writeFile(t, "scenario.yaml", scenario)})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, b.String(), "K[EventTime/x]@10")
	})

	t.Run("replay bad output", func(t *testing.T) {
		cmd := NewReplayCommand()
		cmd.SetArgs([]string{"--output=xml", writeFile(t, "scenario.yaml", scenario)})
		err := cmd.Execute()
		assert.ErrorContains(t, err, "unsupported output format")
	})
}
