package flipmatch

import (
	"context"
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/discovery"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/errs"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/game"
)

// GetGame reads one game. Ids beyond the game counter fail at once; ids
// within it that cannot be decoded yet are retried on the delay table,
// since a just-created game may still be indexing.
func (s *Service) GetGame(ctx context.Context, gameID uint64) (game.Game, error) {
	if _, err := gameIDArg(gameID); err != nil {
		return game.Game{}, err
	}
	c, err := s.read(ctx)
	if err != nil {
		return game.Game{}, err
	}
	count, countErr := c.GetGameCount(ctx)
	known := countErr == nil
	if known && gameID > count {
		return game.Game{}, errs.New(errs.GameNotFound, "game %d does not exist, valid ids are 1-%d", gameID, count)
	}

	src := s.source(c)
	for attempt := 0; ; attempt++ {
		g, err := s.loadWithTimeout(ctx, src, gameID)
		if err == nil {
			s.attachPrizeTx(ctx, c, &g)
			return g, nil
		}
		if ctx.Err() != nil {
			return game.Game{}, err
		}

		retry := false
		switch errs.CodeOf(err) {
		case errs.DecodeFailure, errs.ReadTimeout, errs.RateLimited:
			retry = true
		case errs.GameNotFound:
			// An empty record within the counter is indexing lag.
			retry = known
		case errs.ContractReverted:
			return game.Game{}, errs.Wrap(errs.GameNotFound, err, "game %d does not exist", gameID)
		}
		if !retry {
			return game.Game{}, err
		}
		if attempt >= len(s.retryDelays) {
			return game.Game{}, errs.Wrap(errs.CodeOf(err), err, "game %d could not be read after %d attempts, it may still be indexing", gameID, attempt+1)
		}
		delay := s.retryDelays[attempt]
		s.log.Debug("Game not readable yet, retrying", "game", gameID, "attempt", attempt+1, "delay", delay, "err", err)
		if err := s.sleep(ctx, delay); err != nil {
			return game.Game{}, err
		}
	}
}

func (s *Service) loadWithTimeout(ctx context.Context, src *source, gameID uint64) (game.Game, error) {
	tctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	g, err := src.LoadGame(tctx, gameID)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return g, errs.Wrap(errs.ReadTimeout, err, "getGame(%d) timed out after %s", gameID, s.readTimeout)
	}
	return g, err
}

// attachPrizeTx looks up the transaction that paid a finished game.
func (s *Service) attachPrizeTx(ctx context.Context, c Contract, g *game.Game) {
	if !g.Status.Finished() {
		return
	}
	hash, ok, err := c.GameCompletedTx(ctx, g.ID, 0)
	if err != nil {
		s.log.Debug("GameCompleted lookup failed", "game", g.ID, "err", err)
		return
	}
	if ok {
		g.PrizeTxHash = &hash
	}
}

// GetPlayer reads a player record. Undecodable records read as absent.
func (s *Service) GetPlayer(ctx context.Context, gameID uint64, player common.Address) (game.Player, error) {
	c, err := s.read(ctx)
	if err != nil {
		return game.Player{}, err
	}
	raw, err := c.GetPlayer(ctx, gameID, player)
	if err != nil {
		if errs.CodeOf(err) == errs.DecodeFailure {
			return game.AbsentPlayer(player), nil
		}
		return game.Player{}, err
	}
	return game.NormalizePlayer(raw, player), nil
}

// GetScores returns a scoreboard row per player, read in parallel. Players
// whose record cannot be read get an empty row.
func (s *Service) GetScores(ctx context.Context, gameID uint64) ([]game.Score, error) {
	c, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	players, err := c.GetGamePlayers(ctx, gameID)
	if err != nil {
		s.log.Warn("Reading players failed", "game", gameID, "err", err)
		return []game.Score{}, nil
	}

	scores := make([]game.Score, len(players))
	eg, ectx := errgroup.WithContext(ctx)
	for i, addr := range players {
		i, addr := i, addr
		eg.Go(func() error {
			row := game.Score{Index: i, GameID: gameID, Player: addr}
			if raw, err := c.GetPlayer(ectx, gameID, addr); err == nil {
				p := game.NormalizePlayer(raw, addr)
				row.FlipCount, row.FinalScore, row.Played, row.State = p.FlipCount, p.FinalScore, p.HasCompleted, p.State
			}
			scores[i] = row
			return nil
		})
	}
	_ = eg.Wait()
	return scores, nil
}

// GetActiveGames lists games that are not completed or tied.
func (s *Service) GetActiveGames(ctx context.Context) ([]game.Game, error) {
	games, err := s.discoverGames(ctx, discovery.Query{})
	if err != nil {
		return nil, err
	}
	active := games[:0]
	for _, g := range games {
		if !g.Status.Finished() {
			active = append(active, g)
		}
	}
	return active, nil
}

// GetAllGames lists every game discovery can find.
func (s *Service) GetAllGames(ctx context.Context) ([]game.Game, error) {
	return s.discoverGames(ctx, discovery.Query{All: true})
}

// GetMyGames lists games player created or joined, merged into and
// persisted back to the player's cache entry. When the chain cannot be
// read the cached entry is returned; when the cache cannot be read the
// fresh games are returned and the entry is left alone.
func (s *Service) GetMyGames(ctx context.Context, player common.Address) ([]game.Game, error) {
	if player == (common.Address{}) {
		return []game.Game{}, nil
	}
	c, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.Key{ChainID: c.ChainID(), Player: player}
	fresh, err := s.discover(ctx, c, discovery.Query{Player: &player})
	if err != nil {
		s.log.Warn("Discovering player games failed, serving cache", "player", player, "err", err)
		return s.cache.Cached(ctx, key), nil
	}
	merged, err := s.cache.Reconcile(ctx, key, fresh)
	if err != nil {
		s.log.Warn("Persisting player games failed", "player", player, "err", err)
	}
	if merged == nil {
		return cache.MergeGames(nil, fresh), nil
	}
	return merged, nil
}

func (s *Service) discoverGames(ctx context.Context, q discovery.Query) ([]game.Game, error) {
	c, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return s.discover(ctx, c, q)
}

// discover enumerates ids for q and loads the games not already loaded by
// the winning strategy, newest first.
func (s *Service) discover(ctx context.Context, c Contract, q discovery.Query) ([]game.Game, error) {
	d := s.discoverer(c)
	res, err := d.DiscoverGameIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	var missing []uint64
	for _, id := range res.IDs {
		if _, ok := res.Games[id]; !ok {
			missing = append(missing, id)
		}
	}
	loaded := d.LoadGames(ctx, missing)
	games := make([]game.Game, 0, len(res.IDs))
	for _, id := range res.IDs {
		if g, ok := res.Games[id]; ok {
			games = append(games, g)
		} else if g, ok := loaded[id]; ok {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ID > games[j].ID })
	return games, nil
}

func (s *Service) GetHouseBalance(ctx context.Context) (*big.Int, error) {
	c, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return c.HouseBalance(ctx)
}

func (s *Service) GetOwner(ctx context.Context) (common.Address, error) {
	c, err := s.read(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return c.Owner(ctx)
}

func (s *Service) GetCardOrder(ctx context.Context, gameID uint64) ([]int, error) {
	if _, err := gameIDArg(gameID); err != nil {
		return nil, err
	}
	c, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetCardOrder(ctx, gameID)
}
