package domain

import (
	"strings"
	"testing"
)

func TestLocateMention(t *testing.T) {
	t.Parallel()

	filler := strings.Repeat("字", 10)
	tests := []struct {
		name     string
		answer   string
		keywords []string
		want     Position
	}{
		{"start", "Brand 领先" + filler, []string{"brand"}, PositionFirst},
		{"middle", filler + "品牌" + filler, []string{"品牌"}, PositionMiddle},
		{"end", filler + filler + filler + "品牌", []string{"品牌"}, PositionEnd},
		{"keyword order wins", filler + "甲" + filler + "乙", []string{"乙", "甲"}, PositionEnd},
		{"missing", filler, []string{"品牌"}, PositionMissing},
		{"blank keyword ignored", filler, []string{" "}, PositionMissing},
		{"empty answer", "", []string{"品牌"}, PositionMissing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := LocateMention(tt.answer, tt.keywords); got != tt.want {
				t.Fatalf("LocateMention() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMeasure(t *testing.T) {
	t.Parallel()

	m := Measure([]EngineAnswer{
		{AnyMention: true, Position: PositionFirst, Score: 100},
		{AnyMention: true, Position: PositionEnd, Score: 30},
		{Error: "timeout"},
		{Position: PositionMissing},
	})
	if m.Total != 4 || m.Mentioned != 2 || m.FirstPlaced != 1 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.MentionRate != 50 || m.FirstRate != 25 || m.AvgScore != 32.5 {
		t.Fatalf("unexpected rates: %+v", m)
	}
	if zero := Measure(nil); zero != (Metrics{}) {
		t.Fatalf("empty input should give zero metrics, got %+v", zero)
	}
}

func TestTrendBetween(t *testing.T) {
	t.Parallel()

	cases := map[[2]float64]Trend{
		{50, 56}:   TrendUp,
		{50, 55}:   TrendFlat,
		{50, 45}:   TrendFlat,
		{50, 44.9}: TrendDown,
	}
	for in, want := range cases {
		if got := TrendBetween(in[0], in[1]); got != want {
			t.Fatalf("TrendBetween(%v, %v) = %s, want %s", in[0], in[1], got, want)
		}
	}
}
