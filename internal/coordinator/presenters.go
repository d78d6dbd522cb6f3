package coordinator

import (
	"context"

	"github.com/italolelis/media_relay/internal/job"
	"github.com/italolelis/media_relay/internal/progress"
)

// Presenters picks the presenter registered for a requester's origin. Jobs
// from an unknown origin render nowhere.
type Presenters map[string]Presenter

func (p Presenters) RendererFor(r job.Requester) progress.Renderer {
	if pr, ok := p[r.Origin]; ok && pr != nil {
		return pr.RendererFor(r)
	}

	return discard{}
}

type discard struct{}

func (discard) RenderProgress(context.Context, progress.Update) error { return nil }
func (discard) RenderMessage(context.Context, progress.Message) error { return nil }
