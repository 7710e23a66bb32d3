package brackets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/retrorumble/tournament-lobby/models"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusAwaitingPlayers Status = "awaiting_players"
	StatusRoundInProgress Status = "round_in_progress"
	StatusCompleted       Status = "completed"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultNotifyTimeout = 5 * time.Second
	defaultFanOut        = 16
)

type ManagerConfig struct {
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
	// FanOut bounds concurrent store writes and notifications per transition.
	FanOut int
}

type StartRequest struct {
	TournamentID string
	Ruleset      models.Ruleset
	// Players in seed order.
	Players []string
}

// Outcome describes what a single call changed.
type Outcome struct {
	TournamentID string
	Round        int
	Status       Status
	Duplicate    bool
	Matches      []*models.MatchDescriptor
	Byes         []string
	Champion     string
	// Warnings holds soft failures wrapping ErrPersistenceUnavailable or
	// ErrNotificationFailed. Progression already happened.
	Warnings []error
}

type matchEntry struct {
	desc   *models.MatchDescriptor
	winner string
}

type bracketState struct {
	mu sync.Mutex

	id       string
	ruleset  models.Ruleset
	status   Status
	round    int
	winners  map[int][]string
	expected map[int]int
	matches  map[string]*matchEntry
	champion string
	version  int64
}

// dispatchPlan is built under the state lock and executed after it is released.
type dispatchPlan struct {
	tournamentID string
	matches      []*models.MatchDescriptor
	champion     string
	progress     *Progress
}

// Manager owns the live bracket of every running tournament. Each
// tournament has its own lock, so brackets advance independently.
type Manager struct {
	store    MatchStore
	notifier Notifier
	progress ProgressRecorder
	logger   *slog.Logger
	cfg      ManagerConfig
	now      func() time.Time

	mu          sync.RWMutex
	tournaments map[string]*bracketState
}

// NewManager wires the bracket manager. progress may be nil.
func NewManager(store MatchStore, notifier Notifier, progress ProgressRecorder, logger *slog.Logger, cfg ManagerConfig) *Manager {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.FanOut <= 0 {
		cfg.FanOut = defaultFanOut
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       store,
		notifier:    notifier,
		progress:    progress,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		tournaments: make(map[string]*bracketState),
	}
}

func validatePlayers(players []string) error {
	if len(players) < MatchSize {
		return fmt.Errorf("%w: need at least %d players, got %d", ErrInvalidInput, MatchSize, len(players))
	}
	seen := make(map[string]struct{}, len(players))
	for _, p := range players {
		if p == "" {
			return fmt.Errorf("%w: empty player id", ErrInvalidInput)
		}
		if p == Bye {
			return fmt.Errorf("%w: %q is a reserved id", ErrInvalidInput, Bye)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate player %s", ErrInvalidInput, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// StartRound opens round 1. Players pair up in seed order; with an odd
// field the last player sits the round out and is carried into round 2.
func (m *Manager) StartRound(ctx context.Context, req StartRequest) (*Outcome, error) {
	if req.TournamentID == "" {
		return nil, fmt.Errorf("%w: tournament id is empty", ErrInvalidInput)
	}
	if err := validatePlayers(req.Players); err != nil {
		return nil, err
	}

	st := &bracketState{
		id:       req.TournamentID,
		ruleset:  req.Ruleset.WithDefaults(),
		status:   StatusAwaitingPlayers,
		winners:  make(map[int][]string),
		expected: make(map[int]int),
		matches:  make(map[string]*matchEntry),
	}

	m.mu.Lock()
	if _, exists := m.tournaments[req.TournamentID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, req.TournamentID)
	}
	st.mu.Lock()
	m.tournaments[req.TournamentID] = st
	m.mu.Unlock()

	pairs := Partition(req.Players, MatchSize)
	byes := Unpaired(req.Players, MatchSize)
	created := make([]*models.MatchDescriptor, 0, len(pairs))
	for i, pair := range pairs {
		desc, err := BuildMatchState(MatchID(st.id, 1, i), pair, m.matchConfig(st, 1, i))
		if err != nil {
			st.mu.Unlock()
			m.mu.Lock()
			delete(m.tournaments, st.id)
			m.mu.Unlock()
			return nil, err
		}
		created = append(created, desc)
	}

	st.round = 1
	st.status = StatusRoundInProgress
	st.winners[1] = append([]string{}, byes...)
	st.expected[1] = len(pairs) + len(byes)
	for _, desc := range created {
		st.matches[desc.MatchID] = &matchEntry{desc: desc}
	}
	st.version++

	out := &Outcome{
		TournamentID: st.id,
		Round:        st.round,
		Status:       st.status,
		Matches:      created,
		Byes:         append([]string{}, byes...),
	}
	plan := dispatchPlan{tournamentID: st.id, matches: created, progress: st.progressLocked()}
	st.mu.Unlock()

	m.logger.Info("bracket started",
		slog.String("tournament_id", req.TournamentID),
		slog.Int("players", len(req.Players)),
		slog.Int("matches", len(created)),
		slog.Int("byes", len(byes)))

	out.Warnings = m.dispatch(ctx, plan)
	return out, nil
}

// RecordResult registers the winner of a match. Re-reporting the same
// result is a no-op flagged as Duplicate. When the last expected winner
// of a round arrives the bracket advances, possibly to a champion.
func (m *Manager) RecordResult(ctx context.Context, tournamentID, matchID, winnerID string) (*Outcome, error) {
	if tournamentID == "" || matchID == "" || winnerID == "" {
		return nil, fmt.Errorf("%w: tournament, match and winner ids are required", ErrInvalidInput)
	}
	st := m.lookup(tournamentID)
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRoundInProgress, tournamentID)
	}

	st.mu.Lock()
	if st.status == StatusCompleted {
		champion := st.champion
		st.mu.Unlock()
		m.logger.Warn("result reported for completed tournament",
			slog.String("tournament_id", tournamentID),
			slog.String("match_id", matchID),
			slog.String("champion", champion))
		return nil, fmt.Errorf("%w: %s", ErrTournamentAlreadyCompleted, tournamentID)
	}
	if st.status != StatusRoundInProgress {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoRoundInProgress, tournamentID)
	}

	entry, ok := st.matches[matchID]
	if !ok {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	if !entry.desc.HasPlayer(winnerID) {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is not in %s", ErrInvalidResult, winnerID, matchID)
	}

	if entry.winner != "" {
		defer st.mu.Unlock()
		switch {
		case entry.winner == winnerID:
			return &Outcome{TournamentID: st.id, Round: st.round, Status: st.status, Duplicate: true}, nil
		case entry.desc.Round < st.round:
			return nil, fmt.Errorf("%w: %s belongs to round %d", ErrStaleResult, matchID, entry.desc.Round)
		default:
			return nil, fmt.Errorf("%w: %s was won by %s", ErrResultConflict, matchID, entry.winner)
		}
	}

	round := entry.desc.Round
	entry.winner = winnerID
	st.winners[round] = append(st.winners[round], winnerID)

	out := &Outcome{TournamentID: st.id}
	plan := dispatchPlan{tournamentID: st.id}
	if err := m.advanceLocked(st, out); err != nil {
		entry.winner = ""
		st.winners[round] = st.winners[round][:len(st.winners[round])-1]
		st.mu.Unlock()
		return nil, err
	}
	st.version++
	out.Round = st.round
	out.Status = st.status
	plan.matches = out.Matches
	plan.champion = out.Champion
	plan.progress = st.progressLocked()
	st.mu.Unlock()

	m.logger.Info("match result recorded",
		slog.String("tournament_id", tournamentID),
		slog.String("match_id", matchID),
		slog.String("winner_id", winnerID),
		slog.Int("round", out.Round))

	out.Warnings = m.dispatch(ctx, plan)
	return out, nil
}

// advanceLocked opens the next round for as long as the current one is
// complete. Each iteration at least halves the field, so the loop ends
// after at most ceil(log2 N) rounds.
func (m *Manager) advanceLocked(st *bracketState, out *Outcome) error {
	for st.status == StatusRoundInProgress && len(st.winners[st.round]) >= st.expected[st.round] {
		field := st.winners[st.round]
		if len(field) == 1 {
			st.champion = field[0]
			st.status = StatusCompleted
			out.Champion = st.champion
			m.logger.Info("tournament champion decided",
				slog.String("tournament_id", st.id),
				slog.String("champion", st.champion),
				slog.Int("rounds", st.round))
			return nil
		}

		next := st.round + 1
		pairs := Partition(FillWithBye(field), MatchSize)
		var created []*models.MatchDescriptor
		var byes []string
		for i, pair := range pairs {
			if IsByePair(pair) {
				byes = append(byes, soloOf(pair))
				continue
			}
			desc, err := BuildMatchState(MatchID(st.id, next, i), pair, m.matchConfig(st, next, i))
			if err != nil {
				return err
			}
			created = append(created, desc)
		}

		for _, desc := range created {
			st.matches[desc.MatchID] = &matchEntry{desc: desc}
		}
		st.winners[next] = append([]string{}, byes...)
		st.expected[next] = len(pairs)
		st.round = next
		out.Matches = append(out.Matches, created...)
		out.Byes = append(out.Byes, byes...)
	}
	return nil
}

func (m *Manager) matchConfig(st *bracketState, round, index int) MatchConfig {
	return MatchConfig{
		TournamentID: st.id,
		Ruleset:      st.ruleset,
		Round:        round,
		MatchIndex:   index,
		CreatedAt:    m.now(),
	}
}

func (st *bracketState) progressLocked() *Progress {
	winners := make(map[int][]string, len(st.winners))
	for r, w := range st.winners {
		winners[r] = append([]string{}, w...)
	}
	return &Progress{
		TournamentID: st.id,
		Version:      st.version,
		CurrentRound: st.round,
		RoundWinners: winners,
		Champion:     st.champion,
	}
}

func (m *Manager) lookup(tournamentID string) *bracketState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tournaments[tournamentID]
}

// dispatch persists and announces new matches, then the champion, then the
// progress record. Failures are logged per item and returned as warnings.
func (m *Manager) dispatch(ctx context.Context, plan dispatchPlan) []error {
	var (
		wmu      sync.Mutex
		warnings []error
	)
	warn := func(err error) {
		wmu.Lock()
		warnings = append(warnings, err)
		wmu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(m.cfg.FanOut)
	for _, desc := range plan.matches {
		g.Go(func() error {
			if err := m.saveMatch(ctx, desc); err != nil {
				warn(err)
			}
			for _, player := range desc.Players {
				if player == Bye {
					continue
				}
				if err := m.notifyPlayer(ctx, player, desc); err != nil {
					warn(err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if plan.champion != "" && m.notifier != nil {
		nctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
		err := m.notifier.BroadcastChampion(nctx, plan.tournamentID, plan.champion)
		cancel()
		if err != nil {
			m.logger.Warn("champion broadcast failed",
				slog.String("tournament_id", plan.tournamentID),
				slog.String("champion", plan.champion),
				slog.Any("error", err))
			warn(fmt.Errorf("%w: champion of %s: %w", ErrNotificationFailed, plan.tournamentID, err))
		}
	}

	if plan.progress != nil && m.progress != nil {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		err := m.progress.SaveBracketProgress(sctx, *plan.progress)
		cancel()
		if err != nil {
			m.logger.Warn("bracket progress not saved",
				slog.String("tournament_id", plan.tournamentID),
				slog.Int64("version", plan.progress.Version),
				slog.Any("error", err))
			warn(fmt.Errorf("%w: progress of %s: %w", ErrPersistenceUnavailable, plan.tournamentID, err))
		}
	}
	return warnings
}

func (m *Manager) saveMatch(ctx context.Context, desc *models.MatchDescriptor) error {
	if m.store == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()
	if err := m.store.Save(sctx, desc); err != nil {
		m.logger.Warn("match state not saved",
			slog.String("tournament_id", desc.TournamentID),
			slog.String("match_id", desc.MatchID),
			slog.Any("error", err))
		return fmt.Errorf("%w: match %s: %w", ErrPersistenceUnavailable, desc.MatchID, err)
	}
	return nil
}

func (m *Manager) notifyPlayer(ctx context.Context, player string, desc *models.MatchDescriptor) error {
	if m.notifier == nil {
		return nil
	}
	nctx, cancel := context.WithTimeout(ctx, m.cfg.NotifyTimeout)
	defer cancel()
	if err := m.notifier.NotifyPlayer(nctx, player, desc); err != nil {
		m.logger.Warn("match start notification failed",
			slog.String("tournament_id", desc.TournamentID),
			slog.String("match_id", desc.MatchID),
			slog.String("player_id", player),
			slog.Any("error", err))
		return fmt.Errorf("%w: player %s match %s: %w", ErrNotificationFailed, player, desc.MatchID, err)
	}
	return nil
}

// Resync re-saves every known descriptor of a tournament and notifies the
// players of undecided current-round matches again. It is the retry path
// after ErrPersistenceUnavailable and ErrNotificationFailed warnings.
func (m *Manager) Resync(ctx context.Context, tournamentID string) (*Outcome, error) {
	st := m.lookup(tournamentID)
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoRoundInProgress, tournamentID)
	}
	st.mu.Lock()
	descs := make([]*models.MatchDescriptor, 0, len(st.matches))
	pending := make(map[string]bool)
	for id, e := range st.matches {
		descs = append(descs, e.desc)
		if st.status == StatusRoundInProgress && e.desc.Round == st.round && e.winner == "" {
			pending[id] = true
		}
	}
	out := &Outcome{TournamentID: st.id, Round: st.round, Status: st.status}
	progress := st.progressLocked()
	st.mu.Unlock()

	sortDescriptors(descs)

	var (
		wmu sync.Mutex
		g   errgroup.Group
	)
	g.SetLimit(m.cfg.FanOut)
	for _, desc := range descs {
		g.Go(func() error {
			var errs []error
			if err := m.saveMatch(ctx, desc); err != nil {
				errs = append(errs, err)
			}
			if pending[desc.MatchID] {
				for _, player := range desc.Players {
					if player == Bye {
						continue
					}
					if err := m.notifyPlayer(ctx, player, desc); err != nil {
						errs = append(errs, err)
					}
				}
			}
			wmu.Lock()
			out.Warnings = append(out.Warnings, errs...)
			wmu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if m.progress != nil {
		sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		if err := m.progress.SaveBracketProgress(sctx, *progress); err != nil {
			out.Warnings = append(out.Warnings, fmt.Errorf("%w: progress of %s: %w", ErrPersistenceUnavailable, tournamentID, err))
		}
		cancel()
	}
	return out, nil
}

// Restore rebuilds the live bracket of a tournament from its durable
// record. Match pairings are derived again from the roster and round
// winners, so descriptors missing from the store are regenerated and saved.
func (m *Manager) Restore(ctx context.Context, t *models.Tournament) (*Outcome, error) {
	if t == nil || t.ID == "" {
		return nil, fmt.Errorf("%w: tournament is required", ErrInvalidInput)
	}
	players := t.ParticipantIDs()
	if err := validatePlayers(players); err != nil {
		return nil, err
	}
	// An active tournament whose round 1 progress was never written is
	// rebuilt as round 1 with the odd player carried by a bye.
	unrecorded := t.CurrentRound < 1
	if unrecorded && t.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: tournament %s has no recorded round", ErrInvalidInput, t.ID)
	}

	stored := make(map[string]*models.MatchDescriptor)
	if m.store != nil {
		lctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		descs, err := m.store.LoadAllForTournament(lctx, t.ID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: load matches of %s: %w", ErrPersistenceUnavailable, t.ID, err)
		}
		for _, d := range descs {
			stored[d.MatchID] = d
		}
	}

	st := &bracketState{
		id:       t.ID,
		ruleset:  t.Ruleset.WithDefaults(),
		status:   StatusRoundInProgress,
		round:    t.CurrentRound,
		winners:  make(map[int][]string),
		expected: make(map[int]int),
		matches:  make(map[string]*matchEntry),
		version:  t.BracketVersion,
	}
	for r, w := range t.RoundWinners {
		st.winners[r] = append([]string{}, w...)
	}
	if unrecorded {
		st.round = 1
		st.winners[1] = append([]string{}, Unpaired(players, MatchSize)...)
		st.version++
	}

	var missing []*models.MatchDescriptor
	field := players
	for round := 1; round <= st.round; round++ {
		var pairs [][]string
		if round == 1 {
			pairs = Partition(field, MatchSize)
			st.expected[1] = len(pairs) + len(Unpaired(field, MatchSize))
		} else {
			pairs = Partition(FillWithBye(field), MatchSize)
			st.expected[round] = len(pairs)
		}
		won := make(map[string]struct{}, len(st.winners[round]))
		for _, w := range st.winners[round] {
			won[w] = struct{}{}
		}
		for i, pair := range pairs {
			if IsByePair(pair) {
				continue
			}
			id := MatchID(st.id, round, i)
			desc, ok := stored[id]
			if !ok {
				built, err := BuildMatchState(id, pair, m.matchConfig(st, round, i))
				if err != nil {
					return nil, err
				}
				desc = built
				missing = append(missing, desc)
			}
			entry := &matchEntry{desc: desc}
			for _, p := range pair {
				if _, ok := won[p]; ok {
					entry.winner = p
				}
			}
			st.matches[id] = entry
		}
		field = st.winners[round]
	}
	if t.Champion != nil && *t.Champion != "" {
		st.champion = *t.Champion
		st.status = StatusCompleted
	}

	m.mu.Lock()
	if _, exists := m.tournaments[t.ID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, t.ID)
	}
	m.tournaments[t.ID] = st
	m.mu.Unlock()

	m.logger.Info("bracket restored",
		slog.String("tournament_id", t.ID),
		slog.Int("round", st.round),
		slog.Int("matches", len(st.matches)),
		slog.Int("regenerated", len(missing)))

	out := &Outcome{TournamentID: st.id, Round: st.round, Status: st.status, Champion: st.champion}
	for _, desc := range missing {
		if err := m.saveMatch(ctx, desc); err != nil {
			out.Warnings = append(out.Warnings, err)
		}
	}
	if unrecorded && m.progress != nil {
		st.mu.Lock()
		progress := st.progressLocked()
		st.mu.Unlock()
		sctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
		if err := m.progress.SaveBracketProgress(sctx, *progress); err != nil {
			m.logger.Warn("failed to save restored bracket progress",
				slog.String("tournament_id", t.ID),
				slog.Any("error", err))
			out.Warnings = append(out.Warnings, fmt.Errorf("%w: progress of %s: %w", ErrPersistenceUnavailable, t.ID, err))
		}
		cancel()
	}
	return out, nil
}

type MatchView struct {
	Match  *models.MatchDescriptor `json:"match"`
	Winner string                  `json:"winner,omitempty"`
}

type RoundView struct {
	Round    int         `json:"round"`
	Expected int         `json:"expected"`
	Winners  []string    `json:"winners"`
	Matches  []MatchView `json:"matches"`
}

type BracketView struct {
	TournamentID string      `json:"tournament_id"`
	Status       Status      `json:"status"`
	CurrentRound int         `json:"current_round"`
	Champion     string      `json:"champion,omitempty"`
	Rounds       []RoundView `json:"rounds"`
}

// Snapshot returns a copy of the live bracket.
func (m *Manager) Snapshot(tournamentID string) (*BracketView, bool) {
	st := m.lookup(tournamentID)
	if st == nil {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	view := &BracketView{
		TournamentID: st.id,
		Status:       st.status,
		CurrentRound: st.round,
		Champion:     st.champion,
	}
	byRound := make(map[int][]MatchView)
	for _, e := range st.matches {
		byRound[e.desc.Round] = append(byRound[e.desc.Round], MatchView{Match: e.desc, Winner: e.winner})
	}
	for r := 1; r <= st.round; r++ {
		matches := byRound[r]
		sort.Slice(matches, func(i, j int) bool { return matches[i].Match.MatchIndex < matches[j].Match.MatchIndex })
		view.Rounds = append(view.Rounds, RoundView{
			Round:    r,
			Expected: st.expected[r],
			Winners:  append([]string{}, st.winners[r]...),
			Matches:  matches,
		})
	}
	return view, true
}

// Match returns a live match and its winner, if decided.
func (m *Manager) Match(tournamentID, matchID string) (*MatchView, bool) {
	st := m.lookup(tournamentID)
	if st == nil {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.matches[matchID]
	if !ok {
		return nil, false
	}
	return &MatchView{Match: e.desc, Winner: e.winner}, true
}

func sortDescriptors(descs []*models.MatchDescriptor) {
	sort.Slice(descs, func(i, j int) bool {
		if descs[i].Round != descs[j].Round {
			return descs[i].Round < descs[j].Round
		}
		return descs[i].MatchIndex < descs[j].MatchIndex
	})
}
