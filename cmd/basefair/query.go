package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

func gameCmd() *cobra.Command {
	var withOrder bool
	cmd := &cobra.Command{
		Use:   "game <game-id>",
		Short: "Show one game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				g, err := a.svc.GetGame(ctx, id)
				if err != nil {
					return err
				}
				if withOrder && len(g.CardOrder) == 0 {
					if order, err := a.svc.GetCardOrder(ctx, id); err == nil {
						g.CardOrder = order
					} else {
						a.log.Warn("Card order unavailable", "game", id, "err", err)
					}
				}
				return printJSON(g)
			})
		},
	}
	cmd.Flags().BoolVar(&withOrder, "card-order", false, "Also read the card order")
	return cmd
}

func gamesCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "games",
		Short: "List active games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				var (
					games []game.Game
					err   error
				)
				if all {
					games, err = a.svc.GetAllGames(ctx)
				} else {
					games, err = a.svc.GetActiveGames(ctx)
				}
				if err != nil {
					return err
				}
				return printJSON(games)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include completed games")
	return cmd
}

func myGamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "my-games [address]",
		Short: "List games an address created or joined",
		Long: `List games an address created or joined. Without an address the
configured wallet account is used. Results are merged into the local cache.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				var player common.Address
				switch {
				case len(args) == 1:
					if !common.IsHexAddress(args[0]) {
						return fmt.Errorf("invalid address %q", args[0])
					}
					player = common.HexToAddress(args[0])
				case a.session != nil:
					player, _ = a.session.CurrentAccount()
				default:
					return fmt.Errorf("give an address or configure a private key")
				}
				games, err := a.svc.GetMyGames(ctx, player)
				if err != nil {
					return err
				}
				return printJSON(games)
			})
		},
	}
}

func scoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scores <game-id>",
		Short: "Show a game's scoreboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app) error {
				scores, err := a.svc.GetScores(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(scores)
			})
		},
	}
}

func houseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "house",
		Short: "Show the house balance and contract owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				balance, err := a.svc.GetHouseBalance(ctx)
				if err != nil {
					return err
				}
				owner, err := a.svc.GetOwner(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("house balance: %s ETH\n", game.FormatEther(balance))
				fmt.Printf("owner: %s\n", owner.Hex())
				return nil
			})
		},
	}
}
