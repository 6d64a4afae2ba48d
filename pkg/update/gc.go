package update

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	fluxerr "github.com/fluxcd/shepherd/pkg/errors"
	"github.com/fluxcd/shepherd/pkg/image"
)

// ImageStore is the part of the control plane that holds local images.
type ImageStore interface {
	Images(ctx context.Context, repository string) ([]string, error)
	PruneContainers(ctx context.Context) error
	RemoveImages(ctx context.Context, ids []string) error
}

// Collector removes local versions of a repository beyond the
// newest Limit. It only runs after an image actually changed.
type Collector struct {
	Store  ImageStore
	Limit  int
	Logger log.Logger
}

// Collect cleans up the repository of img. It returns the IDs it
// removed; any error is best effort and should only be logged.
func (c *Collector) Collect(ctx context.Context, img string) ([]string, error) {
	ref, err := image.ParseRef(img)
	if err != nil {
		return nil, fluxerr.BestEffortError(err)
	}
	repo := ref.Name.String()

	ids, err := c.Store.Images(ctx, repo)
	if err != nil {
		return nil, fluxerr.BestEffortError(err)
	}
	excess := len(ids) - c.Limit
	if c.Limit <= 0 || excess <= 0 {
		return nil, nil
	}

	level.Info(c.Logger).Log("msg", "cleaning up old images", "repository", repo, "keep", c.Limit, "remove", excess)
	// stopped containers pin the layers of the images they ran
	if err := c.Store.PruneContainers(ctx); err != nil {
		return nil, fluxerr.BestEffortError(err)
	}
	// listed newest first
	stale := ids[c.Limit:]
	if err := c.Store.RemoveImages(ctx, stale); err != nil {
		return nil, fluxerr.BestEffortError(errors.Wrapf(err, "repository %s", repo))
	}
	imagesRemoved.Add(float64(len(stale)))
	return stale, nil
}
