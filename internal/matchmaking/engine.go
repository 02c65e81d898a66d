// Package matchmaking turns the waiting pool into balanced four-player match proposals.
//
// Planning is pure: the engine receives queue entries with their player profiles
// and returns proposals. Persisting the proposals (and claiming the entries) is
// the caller's job.
package matchmaking

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/elliotchance/pie/v2"

	"github.com/match-lifecycle/internal/domain"
)

// Kind describes how a proposal was formed
type Kind string

const (
	KindDuoVsDuo      Kind = "duo_vs_duo"
	KindSolo          Kind = "solo"
	KindDuoVsSoloPair Kind = "duo_vs_solo_pair"
)

// Reasons an entry stays in the queue after a pass
const (
	ReasonDuoThreshold     = "duo_threshold"
	ReasonSoloSpread       = "solo_spread"
	ReasonSoloTeamBalance  = "solo_team_balance"
	ReasonDuoSoloThreshold = "duo_solo_threshold"
	ReasonAwaitingPartner  = "awaiting_partner"
	ReasonNotEnoughPlayers = "not_enough_players"
	ReasonMissingProfile   = "missing_profile"
)

// Thresholds are the rating gaps a proposal may not exceed
type Thresholds struct {
	Duo        float64 `yaml:"duo_threshold"`
	SoloSpread float64 `yaml:"solo_spread_threshold"`
	SoloTeam   float64 `yaml:"solo_team_threshold"`
	DuoSolo    float64 `yaml:"duo_solo_threshold"`
}

// DefaultThresholds returns the production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		Duo:        300,
		SoloSpread: 300,
		SoloTeam:   200,
		DuoSolo:    250,
	}
}

// Candidate is a queue entry together with the profile it references
type Candidate struct {
	Entry  domain.QueueEntry
	Player domain.Player
}

func (c Candidate) rating() float64 {
	return c.Entry.AverageRating
}

func (c Candidate) side() domain.Side {
	if c.Entry.PreferredSide != "" {
		return c.Entry.PreferredSide
	}
	return c.Player.SidePreference
}

// BucketKey groups candidates that may play each other
type BucketKey struct {
	Region string
	Gender domain.Gender
}

func (k BucketKey) String() string {
	return k.Region + "#" + string(k.Gender)
}

// Bucket is one independent matchmaking pool
type Bucket struct {
	Key        BucketKey
	Candidates []Candidate
}

// Proposal is a balanced four-player match ready to be persisted
type Proposal struct {
	Kind               Kind
	Bucket             BucketKey
	TeamA              domain.Team
	TeamB              domain.Team
	TeamAAverage       float64
	TeamBAverage       float64
	EntryIDs           []string
	CommonAvailability domain.Availability
}

// Match builds the pending-approval match for this proposal
func (p Proposal) Match(id string, now time.Time) domain.Match {
	m := domain.Match{
		ID:                 id,
		TeamA:              p.TeamA,
		TeamB:              p.TeamB,
		Status:             domain.MatchPendingApproval,
		CommonAvailability: p.CommonAvailability,
		QueueEntryIDs:      append([]string(nil), p.EntryIDs...),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.ResetVotes()
	return m
}

// Plan is the outcome of one pass over a bucket
type Plan struct {
	Proposals []Proposal
	// Unmatched counts the entries left in the queue by reason
	Unmatched map[string]int
}

// misses remembers why each entry was last passed over
type misses map[string]string

func (m misses) mark(reason string, cs ...Candidate) {
	for _, c := range cs {
		m[c.Entry.ID] = reason
	}
}

func (m misses) markDuos(reason string, ds ...duo) {
	for _, d := range ds {
		m.mark(reason, d.first, d.second)
	}
}

// Partition groups entries into buckets keyed by (region, gender). Entries whose
// profile is missing are returned separately and never matched.
func Partition(entries []domain.QueueEntry, players map[string]domain.Player) ([]Bucket, []domain.QueueEntry) {
	index := make(map[BucketKey]int)
	var buckets []Bucket
	var orphans []domain.QueueEntry
	for _, e := range entries {
		p, ok := players[e.PlayerID]
		if !ok {
			orphans = append(orphans, e)
			continue
		}
		key := BucketKey{Region: p.Region.Key(), Gender: e.Gender}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{Key: key})
		}
		buckets[i].Candidates = append(buckets[i].Candidates, Candidate{Entry: e, Player: p})
	}
	return buckets, orphans
}

// Engine plans proposals for one bucket at a time
type Engine struct {
	thresholds Thresholds
}

// NewEngine creates an engine with the given thresholds
func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// Thresholds returns the engine configuration
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

type duo struct {
	first, second Candidate
	average       float64
	createdAt     time.Time
}

// Plan runs duo/duo, then solo x4, then duo/solo-pair matching over the bucket.
// The bucket is not modified.
func (e *Engine) Plan(b Bucket) Plan {
	why := misses{}
	duos, solos, waiting := splitDuos(b.Candidates)
	why.mark(ReasonAwaitingPartner, waiting...)

	var proposals []Proposal
	duos = e.pairDuos(b.Key, duos, &proposals, why)
	solos = e.matchSolos(b.Key, solos, &proposals, why)
	duos, solos = e.pairDuosWithSolos(b.Key, duos, solos, &proposals, why)

	plan := Plan{Proposals: proposals, Unmatched: map[string]int{}}
	leftover := append(waiting, solos...)
	for _, d := range duos {
		leftover = append(leftover, d.first, d.second)
	}
	for _, c := range leftover {
		reason, ok := why[c.Entry.ID]
		if !ok {
			reason = ReasonNotEnoughPlayers
		}
		plan.Unmatched[reason]++
	}
	return plan
}

// splitDuos separates mutually confirmed duos from solos. Entries naming a
// partner who has not named them back (or is not in the bucket) are left waiting.
func splitDuos(candidates []Candidate) ([]duo, []Candidate, []Candidate) {
	byPlayer := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byPlayer[c.Entry.PlayerID] = c
	}

	var duos []duo
	var solos, waiting []Candidate
	seen := make(map[string]bool)
	for _, c := range candidates {
		if !c.Entry.HasPartner() {
			solos = append(solos, c)
			continue
		}
		if seen[c.Entry.PlayerID] {
			continue
		}
		partner, ok := byPlayer[c.Entry.PartnerID]
		if !ok || partner.Entry.PartnerID != c.Entry.PlayerID {
			waiting = append(waiting, c)
			continue
		}
		seen[c.Entry.PlayerID] = true
		seen[partner.Entry.PlayerID] = true

		first, second := c, partner
		if second.Entry.CreatedAt.Before(first.Entry.CreatedAt) {
			first, second = second, first
		}
		duos = append(duos, duo{
			first:     first,
			second:    second,
			average:   (first.rating() + second.rating()) / 2,
			createdAt: first.Entry.CreatedAt,
		})
	}
	return duos, solos, waiting
}

// pairDuos repeatedly pairs the two pending duos with the closest averages while
// they are within the duo threshold.
func (e *Engine) pairDuos(key BucketKey, duos []duo, out *[]Proposal, why misses) []duo {
	pending := pie.SortUsing(duos, func(a, b duo) bool {
		if a.average != b.average {
			return a.average < b.average
		}
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.Before(b.createdAt)
		}
		return a.first.Entry.ID < b.first.Entry.ID
	})

	for len(pending) >= 2 {
		best := -1
		bestGap := math.Inf(1)
		for i := 0; i+1 < len(pending); i++ {
			if gap := pending[i+1].average - pending[i].average; gap < bestGap {
				best, bestGap = i, gap
			}
		}
		if bestGap > e.thresholds.Duo {
			why.markDuos(ReasonDuoThreshold, pending...)
			break
		}
		a, b := pending[best], pending[best+1]
		*out = append(*out, newProposal(KindDuoVsDuo, key,
			duoTeam(a), a.average,
			duoTeam(b), b.average,
			[]Candidate{a.first, a.second, b.first, b.second},
		))
		pending = slices.Delete(pending, best, best+2)
	}
	return pending
}

// matchSolos forms matches from the four lowest-rated solos until a threshold fails.
func (e *Engine) matchSolos(key BucketKey, solos []Candidate, out *[]Proposal, why misses) []Candidate {
	pending := sortByRating(solos)
	for len(pending) >= 4 {
		four := pending[:4]
		if four[3].rating()-four[0].rating() > e.thresholds.SoloSpread {
			why.mark(ReasonSoloSpread, pending...)
			break
		}
		a, b := splitTeams(four)
		avgA := (a[0].rating() + a[1].rating()) / 2
		avgB := (b[0].rating() + b[1].rating()) / 2
		if math.Abs(avgA-avgB) > e.thresholds.SoloTeam {
			why.mark(ReasonSoloTeamBalance, pending...)
			break
		}
		*out = append(*out, newProposal(KindSolo, key,
			soloTeam(a[0], a[1]), avgA,
			soloTeam(b[0], b[1]), avgB,
			[]Candidate{a[0], a[1], b[0], b[1]},
		))
		pending = pending[4:]
	}
	return pending
}

// pairDuosWithSolos gives each leftover duo the adjacent solo pair whose average
// is closest to its own.
func (e *Engine) pairDuosWithSolos(key BucketKey, duos []duo, solos []Candidate, out *[]Proposal, why misses) ([]duo, []Candidate) {
	remaining := slices.SortedFunc(slices.Values(duos), func(a, b duo) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return cmp.Compare(a.first.Entry.ID, b.first.Entry.ID)
	})
	pending := sortByRating(solos)

	var leftover []duo
	for _, d := range remaining {
		if len(pending) < 2 {
			leftover = append(leftover, d)
			continue
		}
		best := -1
		bestGap := math.Inf(1)
		for i := 0; i+1 < len(pending); i++ {
			pairAvg := (pending[i].rating() + pending[i+1].rating()) / 2
			if gap := math.Abs(pairAvg - d.average); gap < bestGap {
				best, bestGap = i, gap
			}
		}
		if bestGap > e.thresholds.DuoSolo {
			why.markDuos(ReasonDuoSoloThreshold, d)
			leftover = append(leftover, d)
			continue
		}
		x, y := pending[best], pending[best+1]
		*out = append(*out, newProposal(KindDuoVsSoloPair, key,
			duoTeam(d), d.average,
			soloTeam(x, y), (x.rating()+y.rating())/2,
			[]Candidate{d.first, d.second, x, y},
		))
		pending = slices.Delete(pending, best, best+2)
	}
	return leftover, pending
}

// teamSplits lists the three ways to split four players into two pairs, list order first.
var teamSplits = [3][2][2]int{
	{{0, 1}, {2, 3}},
	{{0, 2}, {1, 3}},
	{{0, 3}, {1, 2}},
}

// splitTeams picks the split that best honours side preferences: both teams free
// of conflicts first, then more explicit left/right pairs, then closer averages.
// When no split avoids a conflict, the list order split is used.
func splitTeams(four []Candidate) ([2]Candidate, [2]Candidate) {
	type scored struct {
		idx       int
		opposites int
		gap       float64
	}
	var clean []scored
	for i, split := range teamSplits {
		a0, a1 := four[split[0][0]], four[split[0][1]]
		b0, b1 := four[split[1][0]], four[split[1][1]]
		if !compatible(a0.side(), a1.side()) || !compatible(b0.side(), b1.side()) {
			continue
		}
		opp := 0
		if opposite(a0.side(), a1.side()) {
			opp++
		}
		if opposite(b0.side(), b1.side()) {
			opp++
		}
		gap := math.Abs((a0.rating()+a1.rating())/2 - (b0.rating()+b1.rating())/2)
		clean = append(clean, scored{idx: i, opposites: opp, gap: gap})
	}

	chosen := 0
	if len(clean) > 0 {
		best := slices.MinFunc(clean, func(x, y scored) int {
			if c := cmp.Compare(y.opposites, x.opposites); c != 0 {
				return c
			}
			if c := cmp.Compare(x.gap, y.gap); c != 0 {
				return c
			}
			return cmp.Compare(x.idx, y.idx)
		})
		chosen = best.idx
	}
	split := teamSplits[chosen]
	return [2]Candidate{four[split[0][0]], four[split[0][1]]},
		[2]Candidate{four[split[1][0]], four[split[1][1]]}
}

func sortByRating(cs []Candidate) []Candidate {
	return pie.SortUsing(cs, func(a, b Candidate) bool {
		if a.rating() != b.rating() {
			return a.rating() < b.rating()
		}
		if !a.Entry.CreatedAt.Equal(b.Entry.CreatedAt) {
			return a.Entry.CreatedAt.Before(b.Entry.CreatedAt)
		}
		return a.Entry.ID < b.Entry.ID
	})
}

func duoTeam(d duo) domain.Team {
	t := soloTeam(d.first, d.second)
	t.WasDuo = true
	return t
}

func soloTeam(first, second Candidate) domain.Team {
	s1, s2 := AssignSides(first.side(), second.side())
	return domain.Team{
		Players: [2]domain.Slot{
			{PlayerID: first.Entry.PlayerID, Side: s1},
			{PlayerID: second.Entry.PlayerID, Side: s2},
		},
	}
}

func newProposal(kind Kind, key BucketKey, a domain.Team, avgA float64, b domain.Team, avgB float64, members []Candidate) Proposal {
	return Proposal{
		Kind:         kind,
		Bucket:       key,
		TeamA:        a,
		TeamB:        b,
		TeamAAverage: avgA,
		TeamBAverage: avgB,
		EntryIDs:     pie.Map(members, func(c Candidate) string { return c.Entry.ID }),
		CommonAvailability: MergeAvailability(pie.Map(members, func(c Candidate) domain.Availability {
			return c.Player.Availability
		})...),
	}
}
