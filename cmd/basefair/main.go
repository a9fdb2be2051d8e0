package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/config"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/flipmatch"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/notify"
)

const (
	FlagConfigFile = "config-file"
	FlagYes        = "yes"
)

var (
	configPath string
	assumeYes  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "basefair",
		Short: "FlipMatch memory-card games on Base",
		Long: `A command-line client for the FlipMatch contract on Base Mainnet.

Reads need only an RPC endpoint; transactions sign with the configured
private key (BASEFAIR_PRIVATE_KEY).`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, FlagConfigFile, "f", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, FlagYes, "y", false, "Send transactions without asking for confirmation")

	rootCmd.AddCommand(
		createCmd(),
		joinCmd(),
		commitCmd(),
		revealCmd(),
		commitRevealCmd(),
		commitRevealSubmitCmd(),
		submitCmd(),
		cancelCmd(),
		rematchCmd(),
		fulfillVRFCmd(),
		gameCmd(),
		gamesCmd(),
		myGamesCmd(),
		scoresCmd(),
		houseCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is one invocation's wiring: configuration, wallet and service.
type app struct {
	cfg     *config.Config
	log     log.Logger
	session *chain.Session
	store   cache.Store
	svc     *flipmatch.Service
	nets    *chain.Networks
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	l := cfg.SetupLogger()

	nets, err := cfg.Networks()
	if err != nil {
		return nil, err
	}
	abis, err := chain.LoadABIs(nil)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: l, nets: nets}
	conn := &flipmatch.AdapterConnector{
		Adapter: chain.NewAdapter(nets, abis, nil, l),
		ChainID: cfg.ChainID,
	}

	if cfg.PrivateKey != "" {
		backend, err := chain.DialBackend(ctx, nets.Default().RPCURL)
		if err != nil {
			return nil, err
		}
		session, err := chain.NewKeySession(cfg.PrivateKey, backend)
		if err != nil {
			return nil, err
		}
		if !assumeYes {
			session.SetApprover(promptApprover)
		}
		if err := session.Connect(ctx); err != nil {
			return nil, err
		}
		conn.Session = session
		a.session = session
	}

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.store = store

	opts := flipmatch.Options{Cache: cache.NewReconciler(store, l), Logger: l}
	policy := cfg.DiscoveryPolicy()
	opts.Policy = &policy
	if cfg.Redis.URL != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			l.Warn("Redis unavailable, new games will not be announced", "err", err)
		} else {
			opts.Publisher = notify.NewRedisBridge(rdb, l)
		}
	}
	a.svc = flipmatch.New(conn, opts)
	return a, nil
}

func (a *app) Close() {
	if a.session != nil {
		a.session.Disconnect()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Closing cache failed", "err", err)
		}
	}
}

// run wires an app and hands it to fn.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// promptApprover asks on the terminal before each transaction.
func promptApprover(_ context.Context, tx chain.TxSummary) bool {
	value := "0"
	if tx.Value != nil {
		value = game.FormatEther(tx.Value)
	}
	fmt.Fprintf(os.Stderr, "Send %s to %s with %s ETH? [y/N] ", tx.Method, tx.To.Hex(), value)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseStake reads an ether amount such as "0.01" or "0.01ETH".
func parseStake(s string) (*big.Int, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "ETH")
	wei, err := game.ParseEther(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return wei, nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid game id %q", s)
	}
	return id, nil
}
