package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/mazdakn/ufwd/pkg/config"
	"github.com/mazdakn/ufwd/pkg/cpu"
	"github.com/mazdakn/ufwd/pkg/packet"
	"github.com/mazdakn/ufwd/pkg/port"
	"github.com/sirupsen/logrus"
)

type engine struct {
	conf    *config.Config
	driver  port.Driver
	pool    *packet.FixedPool
	ids     []uint16
	devices map[uint16]port.Device
	workers []*worker
	coord   coordinator
}

func New(conf *config.Config, driver port.Driver) *engine {
	return &engine{
		conf:    conf,
		driver:  driver,
		devices: make(map[uint16]port.Device),
	}
}

// Run drives the engine until an interrupt or termination signal.
func (e *engine) Run() error {
	ctx, cancelFunc := setupSignals()
	defer cancelFunc()
	return e.RunContext(ctx)
}

// RunContext drives the engine until the context is cancelled, then
// waits for every worker to finish its drain pass.
func (e *engine) RunContext(ctx context.Context) error {
	logrus.Info("Starting the engine")
	err := e.setup()
	if err != nil {
		return err
	}
	defer e.cleanup()

	var workers sync.WaitGroup
	for _, w := range e.workers {
		workers.Add(1)
		go w.run(ctx, &workers)
	}

	var reporter sync.WaitGroup
	if period := e.conf.StatsEvery(); period > 0 {
		reporter.Add(1)
		go e.reporter(ctx, period, &reporter)
	}
	logrus.Infof("Started the engine with %v workers on %v ports", len(e.workers), len(e.ids))

	<-ctx.Done()
	e.coord.enter(Stopping)
	logrus.Info("Stopping the engine, waiting for workers to drain")

	workers.Wait()
	e.coord.enter(Drained)
	reporter.Wait()
	e.logStats()
	logrus.Info("Stopped the engine")
	return nil
}

// State reports where the engine is in its Running/Stopping/Drained
// shutdown sequence.
func (e *engine) State() State {
	return e.coord.State()
}

// setup configures the pool, the ports, the pairing and the workers.
// Any failure aborts startup before a single worker runs.
func (e *engine) setup() error {
	err := e.conf.Validate()
	if err != nil {
		return err
	}

	e.pool, err = packet.NewFixedPool(e.conf.PoolSize, e.conf.BufferSize)
	if err != nil {
		return fmt.Errorf("failed to create buffer pool - err: %w", err)
	}

	for id := 0; id < e.conf.NumPorts(); id++ {
		dev, err := e.driver.InitPort(uint16(id), 1, 1, e.pool)
		if err != nil {
			return fmt.Errorf("failed to configure port %v - err: %w", id, err)
		}
		e.ids = append(e.ids, uint16(id))
		e.devices[uint16(id)] = dev
		logrus.Infof("Configured port %v (%v) with address %v", id, dev.Name(), dev.HardwareAddr())
	}

	pairs := PairPorts(e.ids)
	var bindings []*binding
	for _, id := range e.ids {
		peer := pairs[id]
		dst := e.devices[peer]
		bindings = append(bindings, &binding{
			rx:     e.devices[id].RxQueue(0),
			tx:     dst.TxQueue(0),
			rxPort: id,
			txPort: peer,
			ownMAC: dst.HardwareAddr(),
		})
	}

	cores := e.conf.Cores
	if len(cores) == 0 {
		cores = cpu.Cores()
	}
	maxWorkers := e.conf.Workers
	if maxWorkers == 0 {
		maxWorkers = len(cores)
	}

	for i, group := range assignBindings(bindings, e.conf.QueuesPerWorker, maxWorkers) {
		core := cores[i%len(cores)]
		e.workers = append(e.workers,
			newWorker(i, core, group, e.pool, e.conf.BurstSize, e.conf.DrainPolls))
	}

	for _, id := range e.ids {
		err := e.devices[id].Start()
		if err != nil {
			return fmt.Errorf("failed to start port %v - err: %w", id, err)
		}
	}
	return nil
}

// assignBindings splits the bindings into groups of perWorker, one
// group per worker. When there are more groups than workers, the last
// worker takes the overflow.
func assignBindings(bindings []*binding, perWorker, maxWorkers int) [][]*binding {
	var groups [][]*binding
	for start := 0; start < len(bindings); start += perWorker {
		end := min(start+perWorker, len(bindings))
		group := append([]*binding(nil), bindings[start:end]...)
		if len(groups) < maxWorkers {
			groups = append(groups, group)
			continue
		}
		logrus.Warnf("not enough workers, last one will take extra queues")
		last := len(groups) - 1
		groups[last] = append(groups[last], group...)
	}
	return groups
}

func (e *engine) cleanup() {
	for _, id := range e.ids {
		err := e.devices[id].Stop()
		if err != nil {
			logrus.WithError(err).Errorf("Failed cleaning up port %v", id)
		}
	}
}
