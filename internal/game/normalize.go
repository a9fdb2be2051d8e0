package game

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// DefaultRosterTimeout bounds the getGamePlayers call made per game.
const DefaultRosterTimeout = 5 * time.Second

// RosterFetcher reads a game's participant list.
type RosterFetcher interface {
	GetGamePlayers(ctx context.Context, gameID uint64) ([]common.Address, error)
}

// Normalizer turns raw contract tuples into Game records. It never fails:
// anything it cannot read is defaulted.
type Normalizer struct {
	roster        RosterFetcher
	rosterTimeout time.Duration
	log           log.Logger
}

func NewNormalizer(roster RosterFetcher, l log.Logger) *Normalizer {
	if l == nil {
		l = log.Root()
	}
	return &Normalizer{roster: roster, rosterTimeout: DefaultRosterTimeout, log: l.New("component", "normalizer")}
}

// WithRosterTimeout overrides the roster timeout.
func (n *Normalizer) WithRosterTimeout(d time.Duration) *Normalizer {
	n.rosterTimeout = d
	return n
}

// Game builds the canonical record for raw, fetching the roster best-effort.
func (n *Normalizer) Game(ctx context.Context, raw RawGame) Game {
	g := decode(raw, n.log)
	g.Players = n.players(ctx, g.ID, g.Creator)
	return g
}

func decode(raw RawGame, l log.Logger) (g Game) {
	f := raw.Fields
	if f == nil {
		f = Fields{}
	}
	defer func() {
		if r := recover(); r != nil {
			l.Warn("Game tuple could not be decoded, using defaults", "err", r)
			id := safeUintNoPanic(f["id"])
			g = minimal(id)
		}
	}()

	switch raw.Schema {
	case SchemaLite:
		g = adaptLite(f)
	default:
		// Unknown tuples go through the full adapter, whose absent fields
		// fall back the same way the lite ones do.
		g = adaptFull(f)
	}
	g.Schema = raw.Schema
	if raw.Schema == SchemaUnknown {
		g.Schema = DetectSchema(f)
	}
	g.WinnerPrize = WinnerPrize(&g)
	return g
}

func safeUintNoPanic(v interface{}) (n uint64) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return safeUint(v)
}

func minimal(id uint64) Game {
	return Game{
		ID:         id,
		Name:       defaultName(id),
		Stake:      zero(),
		TotalPrize: zero(),
		MaxPlayers: 2,
		CardOrder:  []int{},
		Players:    []common.Address{},
	}
}

func defaultName(id uint64) string { return fmt.Sprintf("Game #%d", id) }

func base(f Fields) Game {
	g := minimal(safeUint(f["id"]))
	g.Creator = address(f["creator"])

	switch t := safeUint(f["gameType"]); t {
	case uint64(PlayerVsPlayer):
		g.GameType = PlayerVsPlayer
	default:
		g.GameType = AIVsPlayer
	}
	if s := safeUint(f["status"]); s <= uint64(StatusTied) {
		g.Status = Status(s)
	}

	g.Stake = amount(f["stake"])
	g.TotalPrize = amount(f["totalPrize"])
	if mp := safeUint(f["maxPlayers"]); mp > 0 {
		g.MaxPlayers = mp
	}
	if g.GameType == AIVsPlayer {
		g.MaxPlayers = 1
	}
	g.CurrentPlayers = safeUint(f["currentPlayers"])
	if g.CurrentPlayers > g.MaxPlayers {
		g.CurrentPlayers = g.MaxPlayers
	}
	g.StartedAt = safeUint(f["startedAt"])
	if g.Status.Finished() {
		g.Winner = address(f["winner"])
	}
	g.VRFRequestID = requestID(f["vrfRequestId"])
	g.VRFFulfilled = flag(f["vrfFulfilled"])
	g.HasPassword = nonZeroBytes32(f["passwordHash"])
	return g
}

func adaptFull(f Fields) Game {
	g := base(f)
	if name := text(f["name"]); name != "" && name != "0x" {
		g.Name = name
	}
	if f.Has("createdAt") {
		g.CreatedAt = safeUint(f["createdAt"])
	} else {
		g.CreatedAt = g.StartedAt
	}
	if f.Has("completedAt") {
		g.CompletedAt = safeUint(f["completedAt"])
	} else if g.Status == StatusCompleted {
		g.CompletedAt = g.StartedAt
	}
	g.EndTime = safeUint(f["endTime"])
	switch {
	case f.Has("winnerFlipCount"):
		g.WinnerFlipCount = safeUint(f["winnerFlipCount"])
	case f.Has("winnerScore"):
		g.WinnerFlipCount = safeUint(f["winnerScore"])
	}
	switch {
	case f.Has("winnerFinalScore"):
		g.WinnerFinalScore = safeUint(f["winnerFinalScore"])
	case f.Has("winnerScore"):
		g.WinnerFinalScore = safeUint(f["winnerScore"])
	}
	g.CardOrder = cardFaces(f["cardOrder"])
	return g
}

func adaptLite(f Fields) Game {
	g := base(f)
	g.CreatedAt = g.StartedAt
	if g.Status == StatusCompleted {
		g.CompletedAt = g.StartedAt
	}
	g.WinnerFlipCount = safeUint(f["winnerScore"])
	g.WinnerFinalScore = g.WinnerFlipCount
	return g
}

// players fetches the roster with a timeout; on any failure the roster is
// just the creator. The creator is always listed first when absent.
func (n *Normalizer) players(ctx context.Context, id uint64, creator common.Address) []common.Address {
	fallback := []common.Address{}
	if creator != (common.Address{}) {
		fallback = append(fallback, creator)
	}
	if id == 0 || n.roster == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, n.rosterTimeout)
	defer cancel()

	type result struct {
		players []common.Address
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("roster fetch panicked: %v", r)}
			}
		}()
		p, err := n.roster.GetGamePlayers(ctx, id)
		ch <- result{p, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		n.log.Debug("Roster unavailable, using creator only", "game", id, "err", res.err)
		return fallback
	}

	players := make([]common.Address, 0, len(res.players)+1)
	seen := make(map[common.Address]bool, len(res.players)+1)
	if creator != (common.Address{}) {
		players = append(players, creator)
		seen[creator] = true
	}
	for _, p := range res.players {
		if p == (common.Address{}) || seen[p] {
			continue
		}
		seen[p] = true
		players = append(players, p)
	}
	return players
}

// NormalizePlayer builds a Player from a getPlayer tuple. Unreadable input
// yields the absent-player projection.
func NormalizePlayer(raw RawPlayer, addr common.Address) (p Player) {
	defer func() {
		if recover() != nil {
			p = AbsentPlayer(addr)
		}
	}()
	f := raw.Fields
	if len(f) == 0 {
		return AbsentPlayer(addr)
	}
	p = Player{
		Address:      addr,
		FlipCount:    safeUint(f["flipCount"]),
		FinalScore:   safeUint(f["finalScore"]),
		CompletedAt:  safeUint(f["completedAt"]),
		HasCompleted: flag(f["hasCompleted"]),
		HasJoined:    flag(f["hasJoined"]),
	}
	if a := address(f["playerAddress"]); a != (common.Address{}) {
		p.Address = a
	}
	if s := safeUint(f["state"]); s <= uint64(PlayerSubmitted) {
		p.State = PlayerState(s)
	}
	// A completed player has necessarily joined.
	if p.HasCompleted {
		p.HasJoined = true
	}
	return p
}
