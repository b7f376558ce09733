package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"threadsync/pkg/types"
)

func msg(role types.Role, text, at string) types.Message {
	return types.Message{Role: role, Text: text, CreatedAt: at}
}

func TestReconcile(t *testing.T) {
	const (
		t0 = "2023-01-01T00:00:00Z"
		t5 = "2023-01-01T00:00:05Z"
		t9 = "2023-01-01T00:00:09Z"
	)

	tests := []struct {
		name     string
		snapshot []types.Message
		streamed []types.Message
		want     []types.Message
	}{
		{
			name: "empty",
			want: []types.Message{},
		},
		{
			name:     "snapshot and stream merged chronologically",
			snapshot: []types.Message{msg(types.RoleDeveloper, "looks good", t0)},
			streamed: []types.Message{msg(types.RoleDesigner, "fix contrast", t5)},
			want: []types.Message{
				msg(types.RoleDeveloper, "looks good", t0),
				msg(types.RoleDesigner, "fix contrast", t5),
			},
		},
		{
			name:     "stream duplicate of snapshot collapses",
			snapshot: []types.Message{msg(types.RoleDesigner, "hi", t0)},
			streamed: []types.Message{msg(types.RoleDesigner, "hi", t0)},
			want:     []types.Message{msg(types.RoleDesigner, "hi", t0)},
		},
		{
			name:     "repeated stream delivery collapses",
			streamed: []types.Message{msg(types.RoleReviewer, "ok", t5), msg(types.RoleReviewer, "ok", t5)},
			want:     []types.Message{msg(types.RoleReviewer, "ok", t5)},
		},
		{
			name:     "out of order stream is sorted",
			streamed: []types.Message{msg(types.RoleDesigner, "late", t9), msg(types.RoleDesigner, "early", t0)},
			want:     []types.Message{msg(types.RoleDesigner, "early", t0), msg(types.RoleDesigner, "late", t9)},
		},
		{
			name:     "equal timestamps keep snapshot before stream",
			snapshot: []types.Message{msg(types.RoleDeveloper, "from history", t5)},
			streamed: []types.Message{msg(types.RoleDesigner, "from stream", t5)},
			want: []types.Message{
				msg(types.RoleDeveloper, "from history", t5),
				msg(types.RoleDesigner, "from stream", t5),
			},
		},
		{
			name: "malformed messages dropped",
			snapshot: []types.Message{
				msg("", "no role", t0),
				msg(types.RoleDesigner, "no time", ""),
				msg(types.RoleDesigner, "fine", t5),
			},
			want: []types.Message{msg(types.RoleDesigner, "fine", t5)},
		},
		{
			name: "unparseable timestamp keeps insertion slot",
			snapshot: []types.Message{
				msg(types.RoleDesigner, "a", t0),
				msg(types.RoleDesigner, "b", "yesterday"),
				msg(types.RoleDesigner, "c", t9),
			},
			streamed: []types.Message{msg(types.RoleDesigner, "d", t5)},
			want: []types.Message{
				msg(types.RoleDesigner, "a", t0),
				msg(types.RoleDesigner, "b", "yesterday"),
				msg(types.RoleDesigner, "d", t5),
				msg(types.RoleDesigner, "c", t9),
			},
		},
		{
			name:     "unparseable first message sorts to the front",
			snapshot: []types.Message{msg(types.RoleDesigner, "x", "not-a-time"), msg(types.RoleDesigner, "y", t0)},
			want:     []types.Message{msg(types.RoleDesigner, "x", "not-a-time"), msg(types.RoleDesigner, "y", t0)},
		},
		{
			name:     "unknown role carried through",
			streamed: []types.Message{msg("stakeholder", "hello", t0)},
			want:     []types.Message{msg("stakeholder", "hello", t0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Reconcile(tt.snapshot, tt.streamed))
		})
	}
}

func TestReconcile_LaterDuplicateReplacesValueInPlace(t *testing.T) {
	snap := types.Message{Role: types.RoleDesigner, Text: "hi", CreatedAt: "2023-01-01T00:00:00Z"}
	other := types.Message{Role: types.RoleDeveloper, Text: "yo", CreatedAt: "2023-01-01T00:00:00Z"}
	live := snap
	live.ID = "srv-42"

	got := Reconcile([]types.Message{snap, other}, []types.Message{live})
	require.Len(t, got, 2)
	require.Equal(t, "srv-42", got[0].ID, "streamed value wins but keeps the first position")
	require.Equal(t, other, got[1])
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	snapshot := []types.Message{msg(types.RoleDesigner, "b", "2023-01-01T00:00:09Z"), msg(types.RoleDesigner, "a", "2023-01-01T00:00:00Z")}
	before := append([]types.Message(nil), snapshot...)

	_ = Reconcile(snapshot, nil)
	require.Equal(t, before, snapshot)
}

// Property Tests

var (
	genRole = rapid.SampledFrom([]types.Role{types.RoleDesigner, types.RoleDeveloper, types.RoleReviewer, ""})
	genText = rapid.SampledFrom([]string{"hi", "fix contrast", "a|b", "", "looks good"})
	genTime = rapid.SampledFrom([]string{
		"2023-01-01T00:00:00Z",
		"2023-01-01T00:00:05Z",
		"2023-01-01T00:00:05+00:00",
		"2023-01-01T00:00:05.5Z",
		"2023-01-02T00:00:00Z",
		"garbage",
		"",
	})
	genMessage = rapid.Custom(func(t *rapid.T) types.Message {
		return types.Message{Role: genRole.Draw(t, "role"), Text: genText.Draw(t, "text"), CreatedAt: genTime.Draw(t, "createdAt")}
	})
	genMessages = rapid.SliceOfN(genMessage, 0, 12)
)

func TestReconcile_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		snapshot := genMessages.Draw(rt, "snapshot")
		streamed := genMessages.Draw(rt, "streamed")

		got := Reconcile(snapshot, streamed)

		// Deterministic and idempotent.
		require.Equal(rt, got, Reconcile(snapshot, streamed))
		require.Equal(rt, got, Reconcile(got, nil))

		// Exactly the valid input identities, each once.
		want := map[string]bool{}
		for _, m := range append(append([]types.Message{}, snapshot...), streamed...) {
			if m.Validate() == nil {
				want[types.IdentityKey(m)] = true
			}
		}
		seen := map[string]bool{}
		for _, m := range got {
			key := types.IdentityKey(m)
			require.False(rt, seen[key], "duplicate key %s", key)
			seen[key] = true
		}
		require.Equal(rt, want, seen)

		// Parseable timestamps are non-decreasing.
		var prevSet bool
		var prev types.Message
		for _, m := range got {
			ts, ok := m.Time()
			if !ok {
				continue
			}
			if prevSet {
				pt, _ := prev.Time()
				require.False(rt, ts.Before(pt), "%s sorted after %s", m.CreatedAt, prev.CreatedAt)
			}
			prev, prevSet = m, true
		}
	})
}

func TestBuffer(t *testing.T) {
	snapshot := []types.Message{msg(types.RoleDeveloper, "looks good", "2023-01-01T00:00:00Z")}
	b := NewBuffer(snapshot)

	added, err := b.Add(msg(types.RoleDeveloper, "looks good", "2023-01-01T00:00:00Z"))
	require.NoError(t, err)
	require.False(t, added, "snapshot duplicate")

	added, err = b.Add(msg(types.RoleDesigner, "fix contrast", "2023-01-01T00:00:05Z"))
	require.NoError(t, err)
	require.True(t, added)

	added, err = b.Add(msg(types.RoleDesigner, "fix contrast", "2023-01-01T00:00:05Z"))
	require.NoError(t, err)
	require.False(t, added, "stream duplicate")

	_, err = b.Add(msg("", "nobody", "2023-01-01T00:00:06Z"))
	require.ErrorIs(t, err, types.ErrMissingRole)

	require.Equal(t, 1, b.Len())
	require.Equal(t, []types.Message{
		msg(types.RoleDeveloper, "looks good", "2023-01-01T00:00:00Z"),
		msg(types.RoleDesigner, "fix contrast", "2023-01-01T00:00:05Z"),
	}, b.Timeline())
}

func TestBuffer_MatchesReconcile(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		snapshot := genMessages.Draw(rt, "snapshot")
		streamed := genMessages.Draw(rt, "streamed")

		b := NewBuffer(snapshot)
		for _, m := range streamed {
			_, _ = b.Add(m)
		}
		require.Equal(rt, Reconcile(snapshot, streamed), b.Timeline())
	})
}
