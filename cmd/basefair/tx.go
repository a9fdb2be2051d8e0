package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/flipmatch"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

func (a *app) printTx(hash common.Hash) {
	fmt.Printf("tx: %s\n", hash.Hex())
	if url := a.nets.Default().TxURL(hash); url != "" {
		fmt.Printf("explorer: %s\n", url)
	}
}

func parseGameType(s string) (game.GameType, error) {
	switch strings.ToLower(s) {
	case "ai", "0":
		return game.AIVsPlayer, nil
	case "pvp", "1":
		return game.PlayerVsPlayer, nil
	}
	return 0, fmt.Errorf("unknown game type %q, use ai or pvp", s)
}

func createCmd() *cobra.Command {
	var (
		name     string
		kind     string
		players  uint64
		duration time.Duration
		password string
	)
	cmd := &cobra.Command{
		Use:   "create <stake>",
		Short: "Create a game",
		Long: `Create an AI or player-vs-player game staking the given amount.

Example:
  basefair create 0.01 --type ai
  basefair create 0.05ETH --type pvp --players 3 --duration 24h --name "Friday duel"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stake, err := parseStake(args[0])
			if err != nil {
				return err
			}
			gt, err := parseGameType(kind)
			if err != nil {
				return err
			}
			p := flipmatch.CreateParams{Name: name, GameType: gt, MaxPlayers: players, Duration: duration, Password: password, Stake: stake}
			return run(cmd, func(ctx context.Context, a *app) error {
				res, err := a.svc.CreateGame(ctx, p)
				if err != nil {
					return err
				}
				a.printTx(res.TxHash)
				if !res.Resolved {
					fmt.Printf("game id not indexed yet, probably #%d\n", res.GameID)
					return nil
				}
				fmt.Printf("game: #%d\n", res.GameID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Game name")
	cmd.Flags().StringVar(&kind, "type", "ai", "Game type: ai or pvp")
	cmd.Flags().Uint64Var(&players, "players", 1, "Maximum players")
	cmd.Flags().DurationVar(&duration, "duration", 0, "How long a player-vs-player game stays open")
	cmd.Flags().StringVar(&password, "password", "", "Optional join password")
	return cmd
}

func joinCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "join <game-id> <stake>",
		Short: "Join a player-vs-player game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			stake, err := parseStake(args[1])
			if err != nil {
				return err
			}
			return sendTx(cmd, func(ctx context.Context, a *app) (common.Hash, error) {
				return a.svc.JoinGame(ctx, id, stake, password)
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Join password")
	return cmd
}

func commitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <game-id> <commit-hash>",
		Short: "Commit the hash of a score",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if len(strings.TrimPrefix(args[1], "0x")) != 64 {
				return fmt.Errorf("commit hash must be 32 bytes of hex")
			}
			hash := common.HexToHash(args[1])
			return sendTx(cmd, func(ctx context.Context, a *app) (common.Hash, error) {
				return a.svc.CommitScore(ctx, id, hash)
			})
		},
	}
}

// scoreCmd builds the commands that take <game-id> <flips> <salt>.
func scoreCmd(use, short string, fn func(s *flipmatch.Service, ctx context.Context, id, flips, salt uint64) (common.Hash, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <game-id> <flips> <salt>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flips, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid flip count %q", args[1])
			}
			salt, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid salt %q", args[2])
			}
			return sendTx(cmd, func(ctx context.Context, a *app) (common.Hash, error) {
				return fn(a.svc, ctx, id, flips, salt)
			})
		},
	}
}

func revealCmd() *cobra.Command {
	return scoreCmd("reveal", "Reveal a committed score", (*flipmatch.Service).RevealScore)
}

func commitRevealCmd() *cobra.Command {
	return scoreCmd("commit-reveal", "Commit and reveal a score in one transaction", (*flipmatch.Service).CommitAndReveal)
}

func commitRevealSubmitCmd() *cobra.Command {
	return scoreCmd("commit-reveal-submit", "Commit, reveal and submit a score in one transaction", (*flipmatch.Service).CommitRevealAndSubmit)
}

func submitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <game-id> <flips>",
		Short: "Submit the final flip count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flips, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid flip count %q", args[1])
			}
			return sendTx(cmd, func(ctx context.Context, a *app) (common.Hash, error) {
				return a.svc.SubmitCompletion(ctx, id, flips)
			})
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <game-id>",
		Short: "Cancel a game that has not started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return sendTx(cmd, func(ctx context.Context, a *app) (common.Hash, error) {
				return a.svc.CancelGame(ctx, id)
			})
		},
	}
}

func rematchCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "rematch <game-id> <stake>",
		Short: "Open a rematch of a finished game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			stake, err := parseStake(args[1])
			if err != nil {
				return err
			}
			return sendTx(cmd, func(ctx context.Context, a *app) (common.Hash, error) {
				return a.svc.CreateRematch(ctx, id, name, stake)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Rematch name")
	return cmd
}

func fulfillVRFCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fulfill-vrf <game-id>",
		Short: "Answer a game's randomness request (contract owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return sendTx(cmd, func(ctx context.Context, a *app) (common.Hash, error) {
				return a.svc.FulfillVRF(ctx, id)
			})
		},
	}
}

func sendTx(cmd *cobra.Command, fn func(ctx context.Context, a *app) (common.Hash, error)) error {
	return run(cmd, func(ctx context.Context, a *app) error {
		hash, err := fn(ctx, a)
		if hash != (common.Hash{}) {
			a.printTx(hash)
		}
		return err
	})
}
