package phonetic_test

import (
	"testing"

	"github.com/nammaroute/companion/internal/transit/phonetic"
)

var landmarks = []string{"Kapaleeshwarar Temple", "Rockfort Temple"}

func TestMatch(t *testing.T) {
	t.Parallel()
	m := phonetic.New()

	tests := []struct {
		query string
		want  string
		ok    bool
	}{
		{"Rockfort Temple", "Rockfort Temple", true},
		{"kapaleeshwarar temple", "Kapaleeshwarar Temple", true},
		{"kapaleeshwarar", "Kapaleeshwarar Temple", true},
		{"rokfort", "Rockfort Temple", true},
		{"hello", "hello", false},
		{"   ", "   ", false},
	}
	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			t.Parallel()
			got, score, ok := m.Match(tc.query, landmarks)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Match(%q) = %q, %v; want %q, %v", tc.query, got, ok, tc.want, tc.ok)
			}
			if ok && score < 0.7 {
				t.Errorf("Match(%q) score = %f, want >= 0.7", tc.query, score)
			}
			if !ok && score != 0 {
				t.Errorf("Match(%q) score = %f, want 0 when unmatched", tc.query, score)
			}
		})
	}
}

func TestMatch_EmptyNames(t *testing.T) {
	t.Parallel()
	got, _, ok := phonetic.New().Match("Adyar", nil)
	if ok || got != "Adyar" {
		t.Errorf("Match with no names = %q, %v", got, ok)
	}
}

func TestRank_ExactFirst(t *testing.T) {
	t.Parallel()
	stops := []string{"Broadway", "Central", "Mylapore", "Adyar", "Tambaram"}
	ranked := phonetic.New().Rank("Tambaram", stops)
	if len(ranked) == 0 || ranked[0].Name != "Tambaram" || ranked[0].Score != 1 {
		t.Fatalf("Rank = %+v, want Tambaram first with score 1", ranked)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("rank %d out of order: %+v", i, ranked)
		}
	}
}

func TestThresholdOptions(t *testing.T) {
	t.Parallel()
	strict := phonetic.New(phonetic.WithPhoneticThreshold(1.01), phonetic.WithFuzzyThreshold(1.01))
	if _, _, ok := strict.Match("rokfort", landmarks); ok {
		t.Error("expected no match with unreachable thresholds")
	}
}

func TestRank_SharedWordDoesNotTie(t *testing.T) {
	t.Parallel()
	ranked := phonetic.New().Rank("rokfort temple", landmarks)
	if len(ranked) == 0 || ranked[0].Name != "Rockfort Temple" {
		t.Fatalf("Rank = %+v, want Rockfort Temple first", ranked)
	}
	if len(ranked) > 1 && ranked[1].Score >= ranked[0].Score {
		t.Errorf("second candidate %+v scores as high as the first", ranked[1])
	}
}
