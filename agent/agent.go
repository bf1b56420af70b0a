package agent

import (
	"sync"
	"time"

	"github.com/flowkit/flowkit/config"
	"github.com/flowkit/flowkit/container"
	"github.com/flowkit/flowkit/engine"
	"github.com/flowkit/flowkit/rest"
)

// Agent assembles a running node: container wiring, the background action
// worker and the HTTP surface.
type Agent struct {
	Config       config.Config
	container    *container.DIContainer
	httpServer   *rest.Server
	worker       *engine.BackgroundWorker
	shutdownLock sync.Mutex
	shutdown     bool
	wg           sync.WaitGroup
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	setup := []func() error{
		a.setupContainer,
		a.setupBackgroundWorker,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupContainer() error {
	a.container = container.NewDiContainer()
	a.container.Init(a.Config)
	return nil
}

func (a *Agent) setupBackgroundWorker() error {
	a.worker = engine.NewBackgroundWorker(
		a.container.GetQueue(),
		a.container.GetTaskRegistry(),
		a.Config.ActionQueueName,
		16,
		time.Second,
		&a.wg,
	)
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.container)
	return err
}

// Container exposes the wired container so embedders can register task
// drivers before Start.
func (a *Agent) Container() *container.DIContainer {
	return a.container
}

func (a *Agent) Start() error {
	a.worker.Start()
	return a.httpServer.Start()
}

func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	a.worker.Stop()
	if err := a.httpServer.Stop(); err != nil {
		return err
	}
	a.wg.Wait()
	return nil
}
