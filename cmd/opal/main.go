// Opal chain tool: build, sign and inspect blocks against a local block
// store.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opalchain/opal/common"
	"github.com/opalchain/opal/log"
	"github.com/opalchain/opal/statedb"
	"github.com/opalchain/opal/storage"
	"github.com/opalchain/opal/tree"
	"github.com/opalchain/opal/types"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	var (
		dbPath   string
		logLevel string
	)

	rootCmd := &cobra.Command{
		Use:   "opal",
		Short: "Opal rollup block pipeline tool",
		Long: `Builds, signs and inspects blocks of an opal chain backed by a local
block store. Proposals are supplied as JSON batch files produced by the
transaction executor.`,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "opal-db", "block store path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "log level (trace|debug|info|warn|error)")

	openChain := func() (*storage.BlockStore, *statedb.StateDB, error) {
		store, err := storage.NewBlockStore(dbPath)
		if err != nil {
			return nil, nil, err
		}
		s, err := statedb.LoadStateDB(store, statedb.GenesisFeeParams())
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, s, nil
	}

	keygenCmd := &cobra.Command{
		Use:   "keygen <seed-hex>",
		Short: "Derive an authority keypair from a 32-byte seed",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			seed, err := hex.DecodeString(args[0])
			if err != nil {
				fatal("bad seed: %v", err)
			}
			pub, priv, err := types.InitEd25519Key(seed)
			if err != nil {
				fatal("keygen: %v", err)
			}
			fmt.Printf("public:  %s\n", pub.String())
			fmt.Printf("private: %x\n", []byte(priv))
		},
	}

	headCmd := &cobra.Command{
		Use:   "head",
		Short: "Show the chain head header",
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			store, s, err := openChain()
			if err != nil {
				fatal("open chain: %v", err)
			}
			defer store.Close()
			fmt.Println(s.Head().String())
		},
	}

	var keyHex string
	buildCmd := &cobra.Command{
		Use:   "build <proposal.json>",
		Short: "Construct, commit and sign the next block from a proposal file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			store, s, err := openChain()
			if err != nil {
				fatal("open chain: %v", err)
			}
			defer store.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				fatal("read proposal: %v", err)
			}
			var batches []types.TransactionBatch
			if err := json.Unmarshal(data, &batches); err != nil {
				fatal("parse proposal: %v", err)
			}

			head := s.Head()
			proposed := &types.ProposedBlock{
				PrevHeader: *head,
				BlockNum:   head.BlockNum + 1,
				Timestamp:  nowOrNext(head.Timestamp),
				FeeParams:  head.FeeParams,
				Batches:    batches,
			}

			privBytes, err := hex.DecodeString(keyHex)
			if err != nil {
				fatal("bad --key: %v", err)
			}
			priv, err := types.BytesToEd25519Priv(privBytes)
			if err != nil {
				fatal("bad --key: %v", err)
			}

			sb, err := s.MakeSignedBlock(context.Background(), proposed, priv)
			if err != nil {
				fatal("build block: %v", err)
			}
			fmt.Println(sb.Block.Header.String())
		},
	}
	buildCmd.Flags().StringVar(&keyHex, "key", "", "authority private key (hex, 64 bytes)")

	proveCmd := &cobra.Command{
		Use:   "prove <block-num> <proof-hex>",
		Short: "Record a validity proof for a signed block",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			store, s, err := openChain()
			if err != nil {
				fatal("open chain: %v", err)
			}
			defer store.Close()

			var num uint32
			if _, err := fmt.Sscanf(args[0], "%d", &num); err != nil {
				fatal("bad block number: %v", err)
			}
			proof, err := hex.DecodeString(args[1])
			if err != nil {
				fatal("bad proof: %v", err)
			}
			pb, err := s.MarkProven(num, proof)
			if err != nil {
				fatal("prove: %v", err)
			}
			fmt.Printf("proven block %d header %s\n", pb.Header.BlockNum, pb.Header.Hash().Hex())
		},
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Unwind signed-but-unproven blocks back to the proven tip",
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			store, s, err := openChain()
			if err != nil {
				fatal("open chain: %v", err)
			}
			defer store.Close()
			if err := s.RollbackToProven(); err != nil {
				fatal("rollback: %v", err)
			}
			fmt.Printf("head is now block %d\n", s.Head().BlockNum)
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify-witness <witness.json> <root-hex>",
		Short: "Check an authenticated-path witness against a root",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				fatal("read witness: %v", err)
			}
			var w tree.Witness
			if err := json.Unmarshal(data, &w); err != nil {
				fatal("parse witness: %v", err)
			}
			root := common.HexToHash(args[1])
			if err := w.Verify(root); err != nil {
				fatal("witness does not verify: %v", err)
			}
			fmt.Println("ok")
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("opal %s (%s)\n", Version, Commit)
		},
	}

	rootCmd.AddCommand(keygenCmd, headCmd, buildCmd, proveCmd, rollbackCmd, verifyCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// nowOrNext clamps the proposal timestamp so it never regresses behind
// the previous header.
func nowOrNext(prev uint64) uint64 {
	ts := uint64(time.Now().Unix())
	if ts < prev {
		return prev
	}
	return ts
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
