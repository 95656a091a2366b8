package rss

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// MinPollInterval is the shortest allowed delay between batch updates.
const MinPollInterval = time.Minute

// Poller runs UpdateAll on a fixed interval.
type Poller struct {
	updater  *Updater
	interval time.Duration
	timeout  time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. Intervals below MinPollInterval are raised.
func NewPoller(updater *Updater, interval time.Duration) *Poller {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &Poller{
		updater:  updater,
		interval: interval,
		timeout:  30 * time.Minute,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop. The first run starts immediately.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			log.WithField("interval", p.interval).Info("Poller: updating all feeds")
			p.run()

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

func (p *Poller) run() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	// Stop interrupts a run in progress.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-p.stopChan:
			cancel()
		case <-done:
		}
	}()

	summary := p.updater.UpdateAll(ctx)
	log.WithFields(log.Fields{"feeds": summary.Feeds, "new": summary.NewEntries}).Info("Poller: run finished")
}

// Stop stops the poller and waits for the current run to end. Calling it
// again, or on a poller that never started, is a no-op.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.wg.Wait()
}
