package cache

import (
	"flag"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BackgroundConfig is config for a background write-back store.
type BackgroundConfig struct {
	WriteBackGoroutines int `yaml:"writeback_goroutines"`
	WriteBackBuffer     int `yaml:"writeback_buffer"`
}

// RegisterFlagsWithPrefix adds the flags required to config this to the given FlagSet.
func (cfg *BackgroundConfig) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.WriteBackGoroutines, prefix+"background.write-back-concurrency", 4, "How many goroutines to use for background write-back to the store.")
	f.IntVar(&cfg.WriteBackBuffer, prefix+"background.write-back-buffer", 1024, "How many results to buffer for background write-back.")
}

type backgroundStore struct {
	Store

	logger log.Logger

	wg       sync.WaitGroup
	quit     chan struct{}
	bgWrites chan backgroundWrite

	droppedWriteBack prometheus.Counter
	queueLength      prometheus.Gauge
}

type backgroundWrite struct {
	key   []byte
	value []byte
}

// NewBackgroundStore returns a Store that does Puts on background goroutines.
// A Put when the queue is full is dropped rather than blocking the caller.
func NewBackgroundStore(cfg BackgroundConfig, next Store, logger log.Logger, reg prometheus.Registerer) Store {
	if cfg.WriteBackGoroutines <= 0 {
		cfg.WriteBackGoroutines = 4
	}
	if cfg.WriteBackBuffer <= 0 {
		cfg.WriteBackBuffer = 1024
	}

	s := &backgroundStore{
		Store:    next,
		logger:   logger,
		quit:     make(chan struct{}),
		bgWrites: make(chan backgroundWrite, cfg.WriteBackBuffer),

		droppedWriteBack: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muninn_store_dropped_background_writes_total",
			Help: "Total count of writes dropped because the write-back queue was full",
		}),
		queueLength: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "muninn_store_background_queue_length",
			Help: "Length of the background write-back queue",
		}),
	}

	s.wg.Add(cfg.WriteBackGoroutines)
	for i := 0; i < cfg.WriteBackGoroutines; i++ {
		go s.writeBackLoop()
	}

	return s
}

// Put queues the write for the background goroutines.
func (s *backgroundStore) Put(key, value []byte) error {
	write := backgroundWrite{
		key:   key,
		value: value,
	}
	select {
	case s.bgWrites <- write:
		s.queueLength.Inc()
	default:
		s.droppedWriteBack.Inc()
	}
	return nil
}

func (s *backgroundStore) writeBackLoop() {
	defer s.wg.Done()

	for {
		select {
		case write := <-s.bgWrites:
			s.queueLength.Dec()
			if err := s.Store.Put(write.key, write.value); err != nil {
				level.Error(s.logger).Log("msg", "error writing result to store", "err", err)
			}
		case <-s.quit:
			return
		}
	}
}

// Stop the background flushing goroutines. Queued writes that no goroutine
// picked up yet are discarded.
func (s *backgroundStore) Stop() error {
	close(s.quit)
	s.wg.Wait()

	return s.Store.Stop()
}
