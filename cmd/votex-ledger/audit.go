package main

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"votex-ledger/blockchain/ledger"
	"votex-ledger/encryption"
	"votex-ledger/service"
	"votex-ledger/storage"
)

var errChainInvalid = errors.New("chain failed integrity verification")

// hex0x renders a hex digest with the 0x prefix; anything that is not hex
// comes back unchanged, including the empty digest.
func hex0x(digest string) string {
	if digest == "" {
		return ""
	}
	b, err := hexutil.Decode("0x" + digest)
	if err != nil {
		return digest
	}
	return hexutil.Encode(b)
}

func snapshotFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "snapshot", Aliases: []string{"s"}, Usage: "Snapshot name in storage.dir"},
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Snapshot file path, instead of --snapshot"},
	}
}

func openSnapshot(rt *env, c *cli.Context) (*storage.Snapshot, encryption.Hasher, error) {
	var (
		snap *storage.Snapshot
		err  error
	)
	switch {
	case c.String("file") != "":
		snap, err = storage.ReadSnapshot(c.String("file"))
	case c.String("snapshot") != "":
		var store *storage.JSONStore
		store, err = storage.NewJSONStore(rt.cfg.Storage.Dir)
		if err == nil {
			snap, err = store.LoadChain(c.String("snapshot"))
		}
	default:
		return nil, nil, errors.New("one of --snapshot or --file is required")
	}
	if err != nil {
		return nil, nil, err
	}

	h, err := encryption.NewHasher(snap.Hash)
	if err != nil {
		return nil, nil, errors.Wrap(err, "snapshot hash")
	}
	return snap, h, nil
}

func AuditCommand(rt *env) *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Verify links, block hashes and Merkle roots of a saved chain",
		Flags: snapshotFlags(),
		Action: func(c *cli.Context) error {
			snap, h, err := openSnapshot(rt, c)
			if err != nil {
				return err
			}

			issues := ledger.VerifyChain(snap.Blocks, h, false)
			results := service.Tally(snap.Blocks, h)

			pterm.Info.Printfln("%d blocks, %d sealed votes, hash %s", len(snap.Blocks), results.ProcessedVotes, h.Name())
			if len(issues) == 0 {
				pterm.Success.Println("Chain integrity verified")
				return nil
			}

			rows := pterm.TableData{{"Block", "Issue", "Expected", "Actual"}}
			for _, issue := range issues {
				rows = append(rows, []string{
					strconv.Itoa(issue.BlockIndex),
					string(issue.Kind),
					hex0x(issue.Expected),
					hex0x(issue.Actual),
				})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return err
			}
			rt.log.Warn("Chain audit failed", "issues", len(issues), "first_block", issues[0].BlockIndex)
			return errors.Wrapf(errChainInvalid, "%d issues", len(issues))
		},
	}
}

func ProofCommand(rt *env) *cli.Command {
	return &cli.Command{
		Name:  "proof",
		Usage: "Print and check the Merkle inclusion proof of one sealed vote",
		Flags: append(snapshotFlags(),
			&cli.IntFlag{Name: "block", Aliases: []string{"b"}, Usage: "Block index", Required: true},
			&cli.IntFlag{Name: "tx", Aliases: []string{"t"}, Usage: "Transaction index within the block", Required: true},
		),
		Action: func(c *cli.Context) error {
			snap, h, err := openSnapshot(rt, c)
			if err != nil {
				return err
			}

			bundle, err := ledger.ProofFor(snap.Blocks, h, c.Int("block"), c.Int("tx"))
			if err != nil {
				return err
			}

			tx := bundle.Transaction
			pterm.Info.Printfln("Voter %s, election %d, candidate %d, timestamp %s",
				tx.VoterID, tx.ElectionID, tx.CandidateID, tx.Timestamp.String())
			pterm.Info.Printfln("Leaf: %s", hex0x(bundle.LeafHash))
			pterm.Info.Printfln("Root: %s", hex0x(bundle.MerkleRoot))

			rows := pterm.TableData{{"Level", "Sibling", "Hash"}}
			for i, step := range bundle.MerkleProof {
				rows = append(rows, []string{strconv.Itoa(i), step.Position.String(), hex0x(step.Hash)})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return err
			}

			if !bundle.Verify(h) {
				pterm.Error.Println("Proof does not reach the stored Merkle root")
				return errors.Wrapf(errChainInvalid, "block %d transaction %d", bundle.BlockIndex, bundle.TxIndex)
			}
			pterm.Success.Println("Proof verified")
			return nil
		},
	}
}
