package main

import (
	"bytes"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"tokenring/internal/config"
	"tokenring/internal/offline"
	"tokenring/internal/token"
)

func sampleAssignments() []offline.Assignment {
	return []offline.Assignment{
		{Node: offline.LoopbackIdentity(0), NodeID: 0, RackID: 0, Tokens: []token.Token{token.LongToken(-10), token.LongToken(20)}},
		{Node: offline.LoopbackIdentity(1), NodeID: 1, RackID: 1, Tokens: []token.Token{token.LongToken(5)}},
	}
}

func TestWriteAssignments_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAssignments(&buf, config.OutputYAML, sampleAssignments()))

	var got []assignmentView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []assignmentView{
		{NodeID: 0, Node: "127.0.0.1:0", Rack: 0, Tokens: []string{"-10", "20"}},
		{NodeID: 1, Node: "127.0.0.1:1", Rack: 1, Tokens: []string{"5"}},
	}, got)
}

func TestWriteAssignments_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAssignments(&buf, config.OutputTable, sampleAssignments()))

	out := buf.String()
	assert.Contains(t, out, "NODE ID")
	assert.Contains(t, out, "127.0.0.1:1")
	assert.Contains(t, out, "-10,20")
}

func TestWritePlacements(t *testing.T) {
	placements := []placement{
		{Input: "user:1", Token: "42", Replicas: []string{"127.0.0.1:0/0", "127.0.0.1:1/1"}, BlockFor: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, writePlacements(&buf, config.OutputTable, placements))
	assert.Contains(t, buf.String(), "BLOCK FOR")
	assert.Contains(t, buf.String(), "127.0.0.1:0/0,127.0.0.1:1/1")

	buf.Reset()
	require.NoError(t, writePlacements(&buf, config.OutputYAML, placements))
	assert.Contains(t, buf.String(), "block_for: 2")

	assert.Error(t, writePlacements(&buf, "json", placements))
}

func TestWritePlacements_Availability(t *testing.T) {
	placements := []placement{
		{Input: "a", Token: "1", Replicas: []string{"127.0.0.1:0/0"}, BlockFor: 2, Acks: 2, Available: lo.ToPtr(true)},
		{Input: "b", Token: "2", Replicas: []string{"127.0.0.1:1/1"}, BlockFor: 2, Acks: 1, Available: lo.ToPtr(false), Problem: "QUORUM not met: acks=1 required=2"},
	}

	var buf bytes.Buffer
	require.NoError(t, writePlacements(&buf, config.OutputTable, placements))
	assert.Contains(t, buf.String(), "AVAILABLE")
	assert.Contains(t, buf.String(), "no: QUORUM not met")

	buf.Reset()
	require.NoError(t, writePlacements(&buf, config.OutputYAML, placements))
	var got []placement
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, placements, got)
}
