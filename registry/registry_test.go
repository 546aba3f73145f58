package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	assert.True(t, r.VoterExists("V12345"))
	assert.False(t, r.VoterExists("NOBODY"))
	assert.True(t, r.CandidateInElection(1, 102))
	assert.False(t, r.CandidateInElection(1, 201))
	assert.False(t, r.CandidateInElection(9, 101))

	elections := r.Elections()
	require.Len(t, elections, 2)
	assert.Equal(t, int64(1), elections[0].ID)
	assert.Len(t, elections[1].Candidates, 3)
}

func TestInactiveVoterDoesNotExist(t *testing.T) {
	r := New()
	require.NoError(t, r.AddVoter(Voter{ID: "V1", Name: "Retired", IsActive: false}))

	assert.False(t, r.VoterExists("V1"))
	v, err := r.GetVoter("V1")
	require.NoError(t, err)
	assert.Equal(t, "Retired", v.Name)
}

func TestAddElectionValidation(t *testing.T) {
	r := New()
	assert.Error(t, r.AddElection(Election{Name: "no id"}))
	assert.Error(t, r.AddElection(Election{ID: 1, Candidates: []Candidate{{ID: 1}, {ID: 1}}}))
	assert.Error(t, r.AddVoter(Voter{Name: "no id"}))
}

func TestGetElectionReturnsCopy(t *testing.T) {
	r := Default()
	e, err := r.GetElection(1)
	require.NoError(t, err)
	e.Candidates[0].ID = 999

	assert.True(t, r.CandidateInElection(1, 101))
	_, err = r.GetElection(42)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
voters:
  - id: A1
    name: Alice
    active: true
elections:
  - id: 7
    name: Board
    candidates:
      - id: 71
        name: Bob
`), 0644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, r.VoterExists("A1"))
	assert.True(t, r.CandidateInElection(7, 71))

	require.NoError(t, os.WriteFile(path, []byte("voters:\n  - name: nobody\n"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}
