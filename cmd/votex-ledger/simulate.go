package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"votex-ledger/blockchain/ledger"
	"votex-ledger/config"
	"votex-ledger/registry"
	"votex-ledger/service"
	"votex-ledger/storage"
)

// demoVotes mirrors the ballots of the demo voter roll.
var demoVotes = []service.VoteRequest{
	{VoterID: "V12345", ElectionID: 1, CandidateID: 101},
	{VoterID: "V67890", ElectionID: 1, CandidateID: 102},
	{VoterID: "V54321", ElectionID: 1, CandidateID: 101},
	{VoterID: "VOTER-1", ElectionID: 1, CandidateID: 103},
	{VoterID: "VOTER-2", ElectionID: 2, CandidateID: 201},
	{VoterID: "TEST", ElectionID: 2, CandidateID: 202},
	{VoterID: "V12345", ElectionID: 2, CandidateID: 201},
	// refused: already voted in election 1
	{VoterID: "V12345", ElectionID: 1, CandidateID: 102},
}

type voteScript struct {
	Votes []service.VoteRequest `yaml:"votes"`
}

func loadVotes(path string) ([]service.VoteRequest, error) {
	if path == "" {
		return demoVotes, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read votes file %s", path)
	}
	var script voteScript
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal votes file")
	}
	return script.Votes, nil
}

func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.Registry.Path == "" {
		return registry.Default(), nil
	}
	return registry.LoadFile(cfg.Registry.Path)
}

func SimulateCommand(rt *env) *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Run a scripted election through the queue, ledger and tally",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "votes", Usage: "YAML vote script; demo ballots when empty"},
			&cli.IntFlag{Name: "byzantine", Usage: "Validators to mark faulty (clamped to f)"},
			&cli.StringFlag{Name: "policy", Usage: "strict or permissive"},
			&cli.IntFlag{Name: "batch", Usage: "Accepted votes per block"},
			&cli.IntFlag{Name: "difficulty", Usage: "Leading zero hex characters"},
			&cli.StringFlag{Name: "snapshot", Usage: "Save the final chain under this name"},
		},
		Action: func(c *cli.Context) error {
			cfg := *rt.cfg
			if c.IsSet("policy") {
				cfg.Service.Policy = c.String("policy")
			}
			if c.IsSet("batch") {
				cfg.Service.BatchSize = c.Int("batch")
			}
			if c.IsSet("byzantine") {
				cfg.Service.ByzantineNodes = c.Int("byzantine")
			}
			if c.IsSet("difficulty") {
				cfg.Ledger.Difficulty = c.Int("difficulty")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			policy, err := service.ParsePolicy(cfg.Service.Policy)
			if err != nil {
				return err
			}
			votes, err := loadVotes(c.String("votes"))
			if err != nil {
				return err
			}
			reg, err := loadRegistry(&cfg)
			if err != nil {
				return err
			}

			l, err := ledger.New(cfg.Ledger, ledger.WithLogger(rt.log))
			if err != nil {
				return errors.Wrap(err, "failure to create ledger")
			}

			metrics := service.NewMetricsCollector()
			vs := service.NewVotingService(l, reg, service.Options{
				Policy:  policy,
				Session: service.NewVotingSession(cfg.Service.SessionDuration),
				Metrics: metrics,
				Logger:  rt.log,
			})
			if cfg.Service.ByzantineNodes > 0 {
				marked := vs.SimulateByzantine(cfg.Service.ByzantineNodes)
				pterm.Info.Printfln("Marked %d of %d validators Byzantine (f=%d)", marked, l.Validators().Size(), l.Validators().Tolerance())
			}

			qp := service.NewQueueProcessor(vs, cfg.Service.QueueSize, cfg.Service.BatchSize, rt.log)
			qp.Start(c.Context)
			metrics.StartVotingPhase()

			rows := pterm.TableData{{"Voter", "Election", "Candidate", "Outcome", "Receipt"}}
			for _, req := range votes {
				ch, err := qp.QueueVote(req)
				if err != nil {
					rows = append(rows, voteRow(req, "queue: "+err.Error(), ""))
					continue
				}
				res := <-ch
				switch {
				case res.Err != nil:
					rows = append(rows, voteRow(req, res.Err.Error(), ""))
				case !res.Receipt.Accepted:
					rows = append(rows, voteRow(req, string(res.Receipt.Decision.Outcome), res.Receipt.ID.String()))
				default:
					rows = append(rows, voteRow(req, "accepted", res.Receipt.ID.String()))
				}
			}

			if err := qp.Stop(); err != nil {
				return errors.Wrap(err, "failure to seal pending votes")
			}
			metrics.EndVotingPhase()

			pterm.DefaultSection.Println("Votes")
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return err
			}

			results, err := service.NewVoteCountingService(l, metrics, rt.log).CountVotes()
			if err != nil {
				return err
			}
			if err := renderResults(reg, results); err != nil {
				return err
			}

			m := metrics.GetMetrics()
			pterm.DefaultSection.Println("Chain")
			pterm.Info.Printfln("Blocks: %d (mined %d, %d nonce attempts)", l.Len(), m.Mining.Blocks, m.Mining.NonceAttempts)
			pterm.Info.Printfln("Admissions: %d accepted, %d rejected", m.Admission.Accepted, m.Admission.Rejected)
			pterm.Info.Printfln("Latest Merkle root: %s", hex0x(vs.MerkleRoot()))
			if vs.ChainValid() {
				pterm.Success.Println("Chain integrity verified")
			} else {
				pterm.Error.Println("Chain integrity check failed")
			}

			if name := c.String("snapshot"); name != "" {
				store, err := storage.NewJSONStore(cfg.Storage.Dir)
				if err != nil {
					return err
				}
				if err := store.SaveChain(name, l.Hasher().Name(), l.Blocks()); err != nil {
					return errors.Wrap(err, "failure to save snapshot")
				}
				pterm.Success.Printfln("Snapshot %q saved to %s", name, cfg.Storage.Dir)
			}

			return nil
		},
	}
}

func voteRow(req service.VoteRequest, outcome, receipt string) []string {
	return []string{
		req.VoterID,
		strconv.FormatInt(req.ElectionID, 10),
		strconv.FormatInt(req.CandidateID, 10),
		outcome,
		receipt,
	}
}

func renderResults(reg *registry.Registry, results *service.VotingResults) error {
	pterm.DefaultSection.Println("Results")
	for _, er := range results.Elections {
		title := fmt.Sprintf("Election %d", er.ElectionID)
		names := map[int64]registry.Candidate{}
		if election, err := reg.GetElection(er.ElectionID); err == nil {
			title = election.Name
			for _, c := range election.Candidates {
				names[c.ID] = c
			}
		}

		pterm.Info.Printfln("%s: %d votes", title, er.TotalVotes)
		rows := pterm.TableData{{"Candidate", "Name", "Party", "Votes"}}
		for _, t := range er.Candidates {
			c := names[t.CandidateID]
			rows = append(rows, []string{strconv.FormatInt(t.CandidateID, 10), c.Name, c.Party, strconv.Itoa(t.Votes)})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
			return err
		}
	}
	if results.Unverified > 0 {
		pterm.Warning.Printfln("%d sealed votes failed Merkle verification", results.Unverified)
	}
	return nil
}
