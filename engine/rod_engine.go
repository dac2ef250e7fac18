package engine

import (
	"context"

	"github.com/use-agent/newsingest/models"
)

// RodFetchFunc renders a page in the headless browser. It is injected at
// wiring time so engine/ never imports scraper/.
type RodFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodEngine is a browser-backed engine. The forceStealth flag distinguishes
// the plain browser tier from the stealth tier.
type RodEngine struct {
	fetchFunc    RodFetchFunc
	forceStealth bool
	name         string
}

// NewRodEngine creates a RodEngine around fetchFunc.
func NewRodEngine(fetchFunc RodFetchFunc, forceStealth bool) *RodEngine {
	name := "rod"
	if forceStealth {
		name = "rod-stealth"
	}
	return &RodEngine{
		fetchFunc:    fetchFunc,
		forceStealth: forceStealth,
		name:         name,
	}
}

func (e *RodEngine) Name() string { return e.name }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.fetchFunc == nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, e.name+": no browser configured", nil)
	}

	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.fetchFunc(ctx, &r)
	if err != nil {
		return nil, err
	}
	if err := ClassifyResponse(result.StatusCode, result.HTML, req.URL); err != nil {
		return nil, err
	}

	result.EngineName = e.name
	return result, nil
}
