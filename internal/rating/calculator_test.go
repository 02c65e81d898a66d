package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/match-lifecycle/internal/domain"
)

func TestCalculate_ScenarioC(t *testing.T) {
	// 9-2 over two sets, margin 7, equal teams, nobody provisional.
	res := Calculate(Input{
		WinnerAverage: 1000,
		LoserAverage:  1000,
		Sets:          []domain.SetScore{{A: 6, B: 1}, {A: 3, B: 1}},
		WinnerTeam:    domain.TeamA,
	})

	assert.Equal(t, 7, res.Margin)
	assert.InDelta(t, 1.15, res.ScoreMultiplier, 1e-9)
	assert.InDelta(t, 1.0, res.RatingMultiplier, 1e-9)
	assert.Equal(t, 29, res.WinnerDelta)
	assert.Equal(t, -17, res.LoserDelta)
}

func TestCalculate_ScenarioD(t *testing.T) {
	// Same teams, margin 8 and one provisional player on team B.
	res := Calculate(Input{
		WinnerAverage:       1000,
		LoserAverage:        1000,
		Sets:                []domain.SetScore{{A: 6, B: 0}, {A: 6, B: 4}},
		WinnerTeam:          domain.TeamA,
		ProvisionalInvolved: true,
	})

	assert.Equal(t, 8, res.Margin)
	assert.InDelta(t, 1.8, res.ProvisionalBonus, 1e-9)
	// 25 * 1.2 * 1.8 = 54, 25 * 0.6 * 1.2 * 1.8 = 32.4
	assert.Equal(t, 54, res.WinnerDelta)
	assert.Equal(t, -32, res.LoserDelta)
	assert.LessOrEqual(t, res.WinnerDelta, MaxWinnerPointsProvisional)
}

func TestCalculate_UpsetAmplifiesBothSides(t *testing.T) {
	tests := []struct {
		name       string
		winner     float64
		loser      float64
		wantRM     float64
		wantWinner int
		wantLoser  int
	}{
		// 25 * 1.15 = 28.75, 15 * 1.15 = 17.25
		{name: "weaker team wins", winner: 1000, loser: 1200, wantRM: 1.15, wantWinner: 29, wantLoser: -17},
		{name: "even teams", winner: 1000, loser: 1000, wantRM: 1.0, wantWinner: 25, wantLoser: -15},
		// 25 * 0.85 = 21.25, 15 * 0.85 = 12.75
		{name: "favourite wins", winner: 1200, loser: 1000, wantRM: 0.85, wantWinner: 21, wantLoser: -13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Calculate(Input{
				WinnerAverage: tt.winner,
				LoserAverage:  tt.loser,
				Sets:          []domain.SetScore{{A: 6, B: 4}, {A: 6, B: 4}},
				WinnerTeam:    domain.TeamA,
			})
			assert.Equal(t, 4, res.Margin)
			assert.InDelta(t, tt.wantRM, res.RatingMultiplier, 1e-9)
			assert.Equal(t, tt.wantWinner, res.WinnerDelta)
			assert.Equal(t, tt.wantLoser, res.LoserDelta)
		})
	}
}

func TestCalculate_TeamBWins(t *testing.T) {
	res := Calculate(Input{
		WinnerAverage: 1000,
		LoserAverage:  1000,
		Sets:          []domain.SetScore{{A: 1, B: 6}, {A: 2, B: 6}},
		WinnerTeam:    domain.TeamB,
	})
	assert.Equal(t, 9, res.Margin)
	assert.Greater(t, res.WinnerDelta, 0)
	assert.Less(t, res.LoserDelta, 0)
}

func TestCalculate_SignsAlwaysOpposite(t *testing.T) {
	sets := [][]domain.SetScore{
		{{A: 6, B: 0}, {A: 6, B: 0}},
		{{A: 7, B: 6}, {A: 6, B: 7}, {A: 7, B: 6}},
		{{A: 6, B: 7}, {A: 7, B: 5}, {A: 7, B: 6}},
	}
	ratings := []float64{0, 400, 1000, 1600, 3000}
	for _, s := range sets {
		for _, w := range ratings {
			for _, l := range ratings {
				for _, duo := range []bool{false, true} {
					for _, prov := range []bool{false, true} {
						res := Calculate(Input{WinnerAverage: w, LoserAverage: l, Sets: s, WinnerTeam: domain.TeamA, WinnerWasDuo: duo, ProvisionalInvolved: prov})
						assert.Greater(t, res.WinnerDelta, 0)
						assert.Less(t, res.LoserDelta, 0)
					}
				}
			}
		}
	}
}

func TestCalculate_NonDecreasingInMargin(t *testing.T) {
	prev := 0
	for games := 0; games <= 12; games++ {
		res := Calculate(Input{
			WinnerAverage: 1100,
			LoserAverage:  1000,
			Sets:          []domain.SetScore{{A: 12, B: 12 - games}},
			WinnerTeam:    domain.TeamA,
		})
		if games == 0 {
			// a tied set is not a valid result but the formula still must be monotonic
			prev = res.WinnerDelta
			continue
		}
		assert.GreaterOrEqual(t, res.WinnerDelta, prev, "margin %d", games)
		prev = res.WinnerDelta
	}
}

func TestCalculate_DuoWinsLessThanSolo(t *testing.T) {
	base := Input{
		WinnerAverage: 1000,
		LoserAverage:  1100,
		Sets:          []domain.SetScore{{A: 6, B: 3}, {A: 6, B: 4}},
		WinnerTeam:    domain.TeamA,
	}
	solo := Calculate(base)
	base.WinnerWasDuo = true
	duo := Calculate(base)

	assert.Less(t, duo.WinnerDelta, solo.WinnerDelta)
	assert.Equal(t, solo.LoserDelta, duo.LoserDelta)
}

func TestCalculate_Clamping(t *testing.T) {
	tests := []struct {
		name       string
		in         Input
		wantWinner int
		wantLoser  int
	}{
		{
			name: "heavy favourite barely wins",
			in: Input{
				WinnerAverage: 2000, LoserAverage: 1000,
				Sets:       []domain.SetScore{{A: 7, B: 6}, {A: 6, B: 7}, {A: 7, B: 6}},
				WinnerTeam: domain.TeamA,
			},
			// 25 * 0.85 * 0.6 = 12.75 -> 13, loser 25*0.6*0.85*0.6 = 7.65 -> 8
			wantWinner: 13,
			wantLoser:  -8,
		},
		{
			name: "huge upset with provisional bonus hits the provisional caps",
			in: Input{
				WinnerAverage: 500, LoserAverage: 2500,
				Sets:                []domain.SetScore{{A: 6, B: 0}, {A: 6, B: 0}},
				WinnerTeam:          domain.TeamA,
				ProvisionalInvolved: true,
			},
			wantWinner: MaxWinnerPointsProvisional,
			wantLoser:  -MaxLoserPointsProvisional,
		},
		{
			name: "huge upset without provisional caps the winner",
			in: Input{
				WinnerAverage: 500, LoserAverage: 2500,
				Sets:       []domain.SetScore{{A: 6, B: 0}, {A: 6, B: 0}},
				WinnerTeam: domain.TeamA,
			},
			// loser 25 * 0.6 * 1.4 * 1.6 = 33.6 stays under the cap
			wantWinner: MaxWinnerPoints,
			wantLoser:  -34,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Calculate(tt.in)
			assert.Equal(t, tt.wantWinner, res.WinnerDelta)
			assert.Equal(t, tt.wantLoser, res.LoserDelta)
		})
	}
}

func TestApply_FloorsAtZero(t *testing.T) {
	assert.Equal(t, 0, Apply(10, -17))
	assert.Equal(t, 1029, Apply(1000, 29))
}

func TestCategory(t *testing.T) {
	tests := []struct {
		rating int
		want   int
	}{
		{0, 8},
		{599, 8},
		{600, 7},
		{999, 6},
		{1000, 5},
		{1450, 3},
		{1800, 1},
		{5000, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Category(tt.rating), "rating %d", tt.rating)
	}
}
