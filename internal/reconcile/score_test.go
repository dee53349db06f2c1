package reconcile

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name          string
		final         []*CastMember
		originalCount int
		expectedCount int
		isAnimation   bool
		want          float64
	}{
		{
			name: "fully localized member caps at ten",
			final: []*CastMember{
				{Name: "张三", Character: "老大", PrimaryID: "1", ExternalID: "nm1", RegionalID: "d1"},
			},
			expectedCount: 1,
			want:          10,
		},
		{
			name: "latin name and role with primary id",
			final: []*CastMember{
				{Name: "John", Character: "Lead", PrimaryID: "1"},
			},
			expectedCount: 1,
			want:          3.5,
		},
		{
			name: "generic localized role scores lower than a real one",
			final: []*CastMember{
				{Name: "张三", Character: "演员", PrimaryID: "1"},
			},
			expectedCount: 1,
			want:          6.5,
		},
		{
			name: "voice suffix counts as generic",
			final: []*CastMember{
				{Name: "张三", Character: "老大 (配音)", PrimaryID: "1"},
			},
			expectedCount: 1,
			want:          6.5,
		},
		{
			name: "count penalty below the floor",
			final: []*CastMember{
				{Name: "张三", Character: "老大", PrimaryID: "1", ExternalID: "nm1", RegionalID: "d1"},
			},
			expectedCount: 2,
			want:          5,
		},
		{
			name: "animation floor is laxer",
			final: []*CastMember{
				{Name: "张三", Character: "老大", PrimaryID: "1", ExternalID: "nm1", RegionalID: "d1"},
				{Name: "李四", Character: "老二", PrimaryID: "2", ExternalID: "nm2", RegionalID: "d2"},
			},
			expectedCount: 3,
			isAnimation:   true,
			want:          10,
		},
		{
			name:          "empty cast",
			final:         nil,
			expectedCount: 5,
			want:          0,
		},
		{
			name: "original count used when no expectation",
			final: []*CastMember{
				{Name: "张三", Character: "老大", PrimaryID: "1", ExternalID: "nm1", RegionalID: "d1"},
			},
			originalCount: 2,
			want:          5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.final, tt.originalCount, tt.expectedCount, tt.isAnimation)
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreRoundsToOneDecimal(t *testing.T) {
	// 3 (name) + 0.5 (role) + 2 (primary) = 5.5 and 3 + 3 + 2 = 8
	// average to 6.75, which rounds to 6.8.
	final := []*CastMember{
		{Name: "张三", Character: "Lead", PrimaryID: "1"},
		{Name: "李四", Character: "老二", PrimaryID: "2"},
	}
	if got := Score(final, 2, 2, false); got != 6.8 {
		t.Errorf("Score() = %v, want 6.8", got)
	}
}
