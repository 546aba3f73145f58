package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Directory answers the eligibility questions the voting service asks before
// a ballot reaches the ledger.
type Directory interface {
	VoterExists(voterID string) bool
	CandidateInElection(electionID, candidateID int64) bool
}

type Voter struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	IsActive bool   `yaml:"active"`
}

type Candidate struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Party string `yaml:"party"`
}

type Election struct {
	ID         int64       `yaml:"id"`
	Name       string      `yaml:"name"`
	Candidates []Candidate `yaml:"candidates"`
}

// Registry is an in-memory voter roll and election catalogue.
type Registry struct {
	mu        sync.RWMutex
	voters    map[string]*Voter
	elections map[int64]*Election
}

type file struct {
	Voters    []*Voter    `yaml:"voters"`
	Elections []*Election `yaml:"elections"`
}

func New() *Registry {
	return &Registry{
		voters:    make(map[string]*Voter),
		elections: make(map[int64]*Election),
	}
}

// LoadFile reads voters and elections from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read registry file %s", path)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal registry data")
	}

	r := New()
	for _, v := range f.Voters {
		if err := r.AddVoter(*v); err != nil {
			return nil, err
		}
	}
	for _, e := range f.Elections {
		if err := r.AddElection(*e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns the demo roll and elections.
func Default() *Registry {
	r := New()
	for _, v := range []Voter{
		{ID: "V12345", Name: "Rahul Sharma", IsActive: true},
		{ID: "V67890", Name: "Priya Patel", IsActive: true},
		{ID: "V54321", Name: "Amit Kumar", IsActive: true},
		{ID: "VOTER-1", Name: "Ananya Reddy", IsActive: true},
		{ID: "VOTER-2", Name: "Suresh Iyer", IsActive: true},
		{ID: "TEST", Name: "Neha Gupta", IsActive: true},
	} {
		_ = r.AddVoter(v)
	}
	for _, e := range []Election{
		{ID: 1, Name: "Lok Sabha General Election 2025", Candidates: []Candidate{
			{ID: 101, Name: "Aditya Kapoor", Party: "BJP"},
			{ID: 102, Name: "Sunita Verma", Party: "Congress"},
			{ID: 103, Name: "Rajesh Khanna", Party: "AAP"},
		}},
		{ID: 2, Name: "Gujarat State Assembly Election 2025", Candidates: []Candidate{
			{ID: 201, Name: "Deepak Mehta", Party: "BJP"},
			{ID: 202, Name: "Kavita Rao", Party: "Congress"},
			{ID: 203, Name: "Vijay Chauhan", Party: "Independent"},
		}},
	} {
		_ = r.AddElection(e)
	}
	return r
}

func validateVoter(v Voter) error {
	if v.ID == "" {
		return fmt.Errorf("voter id is required")
	}
	if v.Name == "" {
		return fmt.Errorf("voter %s: name is required", v.ID)
	}
	return nil
}

func (r *Registry) AddVoter(v Voter) error {
	if err := validateVoter(v); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	voter := v
	r.voters[v.ID] = &voter
	return nil
}

func (r *Registry) AddElection(e Election) error {
	if e.ID == 0 {
		return fmt.Errorf("election id is required")
	}
	seen := make(map[int64]bool, len(e.Candidates))
	for _, c := range e.Candidates {
		if c.ID == 0 {
			return fmt.Errorf("election %d: candidate id is required", e.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("election %d: duplicate candidate %d", e.ID, c.ID)
		}
		seen[c.ID] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	election := e
	election.Candidates = append([]Candidate(nil), e.Candidates...)
	r.elections[e.ID] = &election
	return nil
}

// VoterExists reports whether voterID is on the roll and active.
func (r *Registry) VoterExists(voterID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voter, exists := r.voters[voterID]
	return exists && voter.IsActive
}

func (r *Registry) GetVoter(voterID string) (*Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voter, exists := r.voters[voterID]
	if !exists {
		return nil, fmt.Errorf("voter %s not found", voterID)
	}

	voterCopy := *voter
	return &voterCopy, nil
}

func (r *Registry) GetElection(electionID int64) (*Election, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	election, exists := r.elections[electionID]
	if !exists {
		return nil, fmt.Errorf("election %d not found", electionID)
	}

	electionCopy := *election
	electionCopy.Candidates = append([]Candidate(nil), election.Candidates...)
	return &electionCopy, nil
}

// Elections lists all elections ordered by id.
func (r *Registry) Elections() []Election {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Election, 0, len(r.elections))
	for _, e := range r.elections {
		c := *e
		c.Candidates = append([]Candidate(nil), e.Candidates...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CandidateInElection reports whether candidateID stands in electionID.
func (r *Registry) CandidateInElection(electionID, candidateID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	election, exists := r.elections[electionID]
	if !exists {
		return false
	}
	for _, c := range election.Candidates {
		if c.ID == candidateID {
			return true
		}
	}
	return false
}
