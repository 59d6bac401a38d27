package di

import (
	"github.com/aristath/frontier/internal/clients/yahoo"
	"github.com/aristath/frontier/internal/modules/frontier"
	"github.com/aristath/frontier/internal/modules/plots"
)

// Container holds every long-lived service of the application
type Container struct {
	YahooClient *yahoo.Client
	Sampler     *frontier.Sampler
	Optimizer   *frontier.Optimizer
	Service     *frontier.Service
	RunStore    *frontier.RunStore
	Renderer    *plots.Renderer
}
