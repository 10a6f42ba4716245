package cache

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

func sampleMission() *mission.AggregatedMission {
	return &mission.AggregatedMission{
		Name:      "Operation Tinfoil",
		StartTime: 10,
		Duration:  34,
		Events: []mission.MergedEvent{
			{ID: 1, MissionTimestamp: 42.5, Type: mission.EventHit, ActorID: "Viper 1-1", TargetID: "Bandit 1",
				Sources: []mission.EventRef{{SourceID: "a", Index: 0}}},
			{ID: 2, MissionTimestamp: 44, Type: mission.EventKill, ActorID: "Viper 1-1", TargetID: "Bandit 1",
				Attributes: map[string]string{"weapon": "AIM-120C"},
				Sources:    []mission.EventRef{{SourceID: "a", Index: 1}, {SourceID: "b", Index: 0}}},
		},
		Links: []mission.Link{{FromEventID: 1, ToEventID: 2, Kind: mission.LinkCausalHitKill, Confidence: 0.7, Inferred: true}},
		Sources: []mission.SourceSummary{
			{ID: "a", Filename: "lead.xml", Events: 2, OffsetStrategy: mission.StrategyNone, Baseline: true},
			{ID: "b", Filename: "wing.xml", Events: 1, Offset: 5.2, OffsetStrategy: mission.StrategyAnchor},
		},
		Metrics: mission.Metrics{RawEventCount: 3, MergedEvents: 2, DuplicatesSuppressed: 1, InferredLinks: 1},
	}
}

func inputFiles(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	var files []string
	for name, body := range map[string]string{"lead.xml": "<a/>", "wing.xml": "<b/>", "broken.xml": "<"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		files = append(files, p)
	}
	return files
}

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public", "debriefings")
	files := inputFiles(t)
	w := NewWriter(dir)
	w.now = func() time.Time { return time.Unix(1700000000, 0) }

	doc, err := w.Write(sampleMission(), files, []Failure{{Index: 2, File: "broken.xml", Error: "unexpected EOF"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), doc.Generated)
	assert.Equal(t, "2023-11-14T22:13:20Z", doc.GeneratedISO)
	assert.Equal(t, 3, doc.FileCount)

	got, err := Read(dir)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.Equal(t, "Operation Tinfoil", got.Mission.Name)
	assert.Equal(t, 1, got.Metrics.DuplicatesSuppressed)

	meta, err := ReadMeta(dir)
	require.NoError(t, err)
	require.Len(t, meta.FileHashes, 3)
	sum := md5.Sum([]byte("<a/>"))
	assert.Equal(t, hex.EncodeToString(sum[:]), meta.FileHashes["lead.xml"].Hash)
	assert.Equal(t, int64(4), meta.FileHashes["lead.xml"].Size)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files are renamed away")
}

func TestWrite_EmptyMission(t *testing.T) {
	dir := t.TempDir()
	_, err := NewWriter(dir).Write(&mission.AggregatedMission{Name: "Mission"}, nil, nil)
	require.NoError(t, err)

	doc, err := Read(dir)
	require.NoError(t, err)
	assert.Empty(t, doc.Mission.Events)
	assert.Empty(t, doc.Failures)
}

func TestWrite_MissingInput(t *testing.T) {
	_, err := NewWriter(t.TempDir()).Write(sampleMission(), []string{filepath.Join(t.TempDir(), "gone.xml")}, nil)
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"wrong version", `{"version":"2.0","generated":1,"generatedIso":"x","fileCount":0,"files":[],"failures":[],"mission":{"name":"m","startTime":0,"duration":0,"events":[],"links":[],"sources":[]},"metrics":{"raw_event_count":0,"merged_events":0,"duplicates_suppressed":0,"inferred_links":0}}`},
		{"missing metrics", `{"version":"1.0","generated":1,"generatedIso":"x","fileCount":0,"files":[],"failures":[],"mission":{"name":"m","startTime":0,"duration":0,"events":[],"links":[],"sources":[]}}`},
		{"event without sources", `{"version":"1.0","generated":1,"generatedIso":"x","fileCount":0,"files":[],"failures":[],"mission":{"name":"m","startTime":0,"duration":0,"events":[{"id":1,"missionTimestamp":0,"type":"kill","actorId":"a","sources":[]}],"links":[],"sources":[]},"metrics":{"raw_event_count":0,"merged_events":0,"duplicates_suppressed":0,"inferred_links":0}}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate([]byte(tt.doc)))
		})
	}
}

func TestMetaStale(t *testing.T) {
	dir := t.TempDir()
	files := inputFiles(t)
	_, err := NewWriter(dir).Write(sampleMission(), files, nil)
	require.NoError(t, err)
	meta, err := ReadMeta(dir)
	require.NoError(t, err)

	stale, err := meta.Stale(files)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, os.WriteFile(files[0], []byte("changed content"), 0o644))
	stale, err = meta.Stale(files)
	require.NoError(t, err)
	assert.True(t, stale)

	stale, err = meta.Stale(files[:1])
	require.NoError(t, err)
	assert.True(t, stale)
}
