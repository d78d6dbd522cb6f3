// Package candidate ranks the media variants found on a page and decides how
// the chosen one can be fetched.
package candidate

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

var (
	resolutionPattern = regexp.MustCompile(`(?i)(\d{3,4})p`)
	uhdPattern        = regexp.MustCompile(`(?i)\b4k\b`)
)

// Candidate is one discovered downloadable variant. Rank is 0 when unknown,
// otherwise the vertical pixel count.
type Candidate struct {
	Location *url.URL
	Label    string
	Rank     int
}

// New builds a Candidate and infers its rank from the location and label.
func New(location *url.URL, label string) Candidate {
	return Candidate{
		Location: location,
		Label:    label,
		Rank:     Rank(location.String(), label),
	}
}

// Resolution renders the rank for humans.
func (c Candidate) Resolution() string {
	if c.Rank == 0 {
		return "Unknown"
	}

	return fmt.Sprintf("%dp", c.Rank)
}

// Verdict is the outcome of an accessibility probe. KnownSize is 0 when the
// remote does not report a size.
type Verdict struct {
	FetchableWithoutSession bool
	KnownSize               int64
}

// Rank infers a vertical resolution. An explicit "<n>p" token in href or
// label wins over a "4k" token.
func Rank(href, label string) int {
	for _, s := range []string{href, label} {
		if m := resolutionPattern.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}

	if uhdPattern.MatchString(href) || uhdPattern.MatchString(label) {
		return 2160
	}

	return 0
}

// NoCandidatesError means discovery succeeded but found nothing usable.
type NoCandidatesError struct {
	PageURL string
}

func (e *NoCandidatesError) Error() string {
	if e.PageURL == "" {
		return "no media candidates found"
	}

	return fmt.Sprintf("no media candidates found on %s", e.PageURL)
}

// SelectBest returns the candidate with the highest rank. Ties go to the
// earliest element.
func SelectBest(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, &NoCandidatesError{}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Rank > best.Rank {
			best = c
		}
	}

	return best, nil
}
