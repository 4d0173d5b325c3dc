package workers

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"groupchat/contract"

	"github.com/shirou/gopsutil/process"
)

// Health is one sample of the server's load.
type Health struct {
	Participants int
	Messages     int
	RSS          uint64
	CPUPercent   float64
	SampledAt    time.Time
}

// HealthMonitoringWorker samples chat load and process usage every interval
// and logs it. The latest sample stays readable through Latest.
type HealthMonitoringWorker struct {
	mu       sync.RWMutex
	log      *slog.Logger
	registry contract.IRegistry
	store    contract.IMessageStore
	interval time.Duration
	latest   Health
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	store contract.IMessageStore,
	interval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:      log,
		registry: registry,
		store:    store,
		interval: interval,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			health := w.sample(p)
			w.mu.Lock()
			w.latest = health
			w.mu.Unlock()
			w.log.Info("Health",
				"participants", health.Participants,
				"messages", health.Messages,
				"rss_bytes", health.RSS,
				"cpu_percent", health.CPUPercent)
		}
	}
}

// Latest returns the most recent sample, zero before the first tick.
func (w *HealthMonitoringWorker) Latest() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

func (w *HealthMonitoringWorker) sample(p *process.Process) Health {
	health := Health{
		Participants: len(w.registry.ListNames()),
		SampledAt:    time.Now().UTC(),
	}

	count, err := w.store.Count()
	if err != nil {
		w.log.Error("Error while counting messages", "error", err)
	}
	health.Messages = count

	if mem, err := p.MemoryInfo(); err != nil {
		w.log.Debug("Error while finding process ram usage", "error", err)
	} else {
		health.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err != nil {
		w.log.Debug("Error while finding process cpu usage", "error", err)
	} else {
		health.CPUPercent = cpu
	}
	return health
}
