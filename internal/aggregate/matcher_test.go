package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

func TestMerge_CollapsesWithinTolerance(t *testing.T) {
	opts := DefaultOptions()
	a := recording("a", ev{t: 10, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"})
	b := recording("b", ev{t: 11, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"})
	c := recording("c", ev{t: 11.4, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"})

	res := Merge([]mission.SourceRecording{a, b, c}, opts)

	require.Len(t, res.Events, 1)
	assert.Equal(t, 2, res.DuplicatesSuppressed)
	assert.Equal(t, 10.0, res.Events[0].MissionTimestamp)
	assert.Equal(t, []mission.EventRef{
		{SourceID: "a", Index: 0},
		{SourceID: "b", Index: 0},
		{SourceID: "c", Index: 0},
	}, res.Events[0].Sources)
}

func TestMerge_Separates(t *testing.T) {
	tests := []struct {
		name string
		b    ev
	}{
		{"outside tolerance", ev{t: 11.6, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"}},
		{"different type", ev{t: 10, typ: mission.EventHit, actor: "Viper 1-1", target: "Bandit 1"}},
		{"different actor", ev{t: 10, typ: mission.EventKill, actor: "Viper 1-2", target: "Bandit 1"}},
		{"different target", ev{t: 10, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := recording("a", ev{t: 10, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"})
			b := recording("b", tt.b)
			res := Merge([]mission.SourceRecording{a, b}, DefaultOptions())
			assert.Len(t, res.Events, 2)
			assert.Equal(t, 0, res.DuplicatesSuppressed)
		})
	}
}

func TestMerge_MissingTargetJoinsAndFills(t *testing.T) {
	a := recording("a", ev{t: 10, typ: mission.EventKill, actor: "Viper 1-1"})
	b := recording("b", ev{t: 10.5, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"})

	res := Merge([]mission.SourceRecording{a, b}, DefaultOptions())

	require.Len(t, res.Events, 1)
	assert.Equal(t, "Bandit 1", res.Events[0].TargetID)
	assert.Equal(t, 1, res.DuplicatesSuppressed)
}

func TestMerge_OneContributorPerSource(t *testing.T) {
	a := recording("a",
		ev{t: 10, typ: mission.EventFired, actor: "Viper 1-1"},
		ev{t: 10.5, typ: mission.EventFired, actor: "Viper 1-1"},
	)

	res := Merge([]mission.SourceRecording{a}, DefaultOptions())

	assert.Len(t, res.Events, 2)
	assert.Equal(t, 0, res.DuplicatesSuppressed)
}

func TestMerge_AttributesEarliestWins(t *testing.T) {
	a := recording("a", ev{t: 10, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"})
	a.Events[0].Attributes = map[string]string{"weapon": "AIM-120C"}
	b := recording("b", ev{t: 10.2, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"})
	b.Events[0].Attributes = map[string]string{"weapon": "AIM-9X", "coalition": "Allies"}

	res := Merge([]mission.SourceRecording{a, b}, DefaultOptions())

	require.Len(t, res.Events, 1)
	assert.Equal(t, map[string]string{"weapon": "AIM-120C", "coalition": "Allies"}, res.Events[0].Attributes)
	assert.Equal(t, "AIM-120C", a.Events[0].Attributes["weapon"])
	assert.Len(t, a.Events[0].Attributes, 1, "raw attributes untouched")
}

func TestMerge_AppliesOffsets(t *testing.T) {
	a := recording("a", ev{t: 100, typ: mission.EventLanding, actor: "Viper 1-1"})
	b := recording("b", ev{t: 40, typ: mission.EventLanding, actor: "Viper 1-1"})
	b.OffsetSeconds = 60

	res := Merge([]mission.SourceRecording{a, b}, DefaultOptions())

	require.Len(t, res.Events, 1)
	assert.Equal(t, 100.0, res.Events[0].MissionTimestamp)
}

func TestMerge_TiesKeepSourceOrder(t *testing.T) {
	a := recording("a", ev{t: 10, typ: mission.EventSpawn, actor: "Alpha"})
	b := recording("b", ev{t: 10, typ: mission.EventSpawn, actor: "Bravo"})

	res := Merge([]mission.SourceRecording{b, a}, DefaultOptions())

	require.Len(t, res.Events, 2)
	assert.Equal(t, "Bravo", res.Events[0].ActorID)
	assert.Equal(t, "Alpha", res.Events[1].ActorID)
}

func TestMerge_KillAttribution(t *testing.T) {
	a := recording("a", ev{t: 10, typ: mission.EventHit, actor: "Viper 1-1", target: "Bandit 1"})
	b := recording("b", ev{t: 13, typ: mission.EventKill, target: "Bandit 1"})

	res := Merge([]mission.SourceRecording{a, b}, DefaultOptions())

	require.Len(t, res.Events, 2)
	kill := res.Events[1]
	assert.Equal(t, mission.EventKill, kill.Type)
	assert.Equal(t, "Viper 1-1", kill.ActorID)
	assert.Equal(t, "true", kill.Attributes[AttrKillerInferred])
	assert.Empty(t, b.Events[0].ActorID)
}

func TestMerge_KillAttributionOutsideWindow(t *testing.T) {
	a := recording("a", ev{t: 10, typ: mission.EventHit, actor: "Viper 1-1", target: "Bandit 1"})
	b := recording("b", ev{t: 16, typ: mission.EventKill, target: "Bandit 1"})

	res := Merge([]mission.SourceRecording{a, b}, DefaultOptions())

	require.Len(t, res.Events, 2)
	assert.Empty(t, res.Events[1].ActorID)
	assert.NotContains(t, res.Events[1].Attributes, AttrKillerInferred)
}

func TestMerge_AttributedKillCollapsesWithReportedKill(t *testing.T) {
	a := recording("a",
		ev{t: 10, typ: mission.EventHit, actor: "Viper 1-1", target: "Bandit 1"},
		ev{t: 12, typ: mission.EventKill, actor: "Viper 1-1", target: "Bandit 1"},
	)
	b := recording("b", ev{t: 12.5, typ: mission.EventKill, target: "Bandit 1"})

	res := Merge([]mission.SourceRecording{a, b}, DefaultOptions())

	require.Len(t, res.Events, 2)
	assert.Equal(t, 1, res.DuplicatesSuppressed)
	assert.Len(t, res.Events[1].Sources, 2)
}
