package candidate

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	require.NoError(t, err)

	return u
}

func TestSelectBest_TieGoesToFirst(t *testing.T) {
	candidates := []Candidate{
		{Label: "a", Rank: 720},
		{Label: "b", Rank: 1080},
		{Label: "c", Rank: 1080},
	}

	best, err := SelectBest(candidates)
	require.NoError(t, err)
	assert.Equal(t, "b", best.Label)
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name  string
		ranks []int
		want  int
	}{
		{name: "single", ranks: []int{0}, want: 0},
		{name: "all unknown picks first", ranks: []int{0, 0, 0}, want: 0},
		{name: "max at end", ranks: []int{360, 480, 2160}, want: 2},
		{name: "max at start", ranks: []int{1080, 720, 1080}, want: 0},
		{name: "unknown never beats known", ranks: []int{0, 240, 0}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := make([]Candidate, len(tt.ranks))
			for i, r := range tt.ranks {
				candidates[i] = Candidate{Label: string(rune('a' + i)), Rank: r}
			}

			best, err := SelectBest(candidates)
			require.NoError(t, err)
			assert.Equal(t, candidates[tt.want].Label, best.Label)
		})
	}
}

func TestSelectBest_Empty(t *testing.T) {
	_, err := SelectBest(nil)

	var noCandidates *NoCandidatesError
	require.ErrorAs(t, err, &noCandidates)
	assert.Equal(t, "no media candidates found", err.Error())
}

func TestRank(t *testing.T) {
	tests := []struct {
		href  string
		label string
		want  int
	}{
		{href: "https://cdn.example.com/v/clip_1080p.mp4", want: 1080},
		{href: "https://cdn.example.com/v/clip.mp4", label: "720p HD", want: 720},
		{href: "https://cdn.example.com/v/480p.mp4", label: "1080p", want: 480},
		{href: "https://cdn.example.com/v/clip.mp4", label: "4K", want: 2160},
		{href: "https://cdn.example.com/v/clip-4k.mp4", want: 2160},
		{href: "https://cdn.example.com/v/clip-4k.mp4", label: "720P", want: 720},
		{href: "https://cdn.example.com/v/clip.mp4", label: "download", want: 0},
		{href: "https://cdn.example.com/v/44khz.mp4", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.href+"|"+tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Rank(tt.href, tt.label))
		})
	}
}

func TestNew(t *testing.T) {
	c := New(mustURL(t, "https://cdn.example.com/v/clip_720p.mp4"), "Download")

	assert.Equal(t, 720, c.Rank)
	assert.Equal(t, "720p", c.Resolution())
	assert.Equal(t, "Unknown", Candidate{}.Resolution())
}

func TestNoCandidatesError(t *testing.T) {
	err := &NoCandidatesError{PageURL: "https://example.com/watch/1"}
	assert.Equal(t, "no media candidates found on https://example.com/watch/1", err.Error())
}
