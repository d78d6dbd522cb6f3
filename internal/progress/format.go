package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/media_relay/internal/job"
)

var phaseTitles = map[job.Phase]string{
	job.PhaseDownload: "⬇️ Downloading",
	job.PhaseUpload:   "📤 Uploading",
	job.PhaseRelay:    "📤 Relaying",
	job.PhaseAnalysis: "🔎 Analyzing",
}

// Format renders an update as two lines of text. Without a known total it
// falls back to an indeterminate form with bytes and rate only.
func Format(u Update) string {
	title, ok := phaseTitles[u.Phase]
	if !ok {
		title = string(u.Phase)
	}

	p := u.Progress
	rate := humanize.Bytes(uint64(p.RateBps)) + "/s"

	var b strings.Builder

	if pct := p.Percent(); pct >= 0 {
		fmt.Fprintf(&b, "%s... %.0f%%\n", title, pct)
		fmt.Fprintf(&b, "%s / %s\n", humanize.Bytes(uint64(p.BytesDone)), humanize.Bytes(uint64(p.BytesTotal)))
		fmt.Fprintf(&b, "🚀 %s | ⏳ %s", rate, time.Duration(p.ETASeconds)*time.Second)

		return b.String()
	}

	fmt.Fprintf(&b, "%s... %s\n", title, humanize.Bytes(uint64(p.BytesDone)))
	fmt.Fprintf(&b, "🚀 %s", rate)

	return b.String()
}

// Size renders a byte count, or "Unknown" for 0.
func Size(n int64) string {
	if n <= 0 {
		return "Unknown"
	}

	return humanize.Bytes(uint64(n))
}
