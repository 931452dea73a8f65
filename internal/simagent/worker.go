// Package simagent runs the scripted workers that stand in for real coding
// agents. Each worker follows a deterministic shift rhythm derived from its
// id and publishes activity observations to the event bus.
package simagent

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent_office/internal/domain"
	"agent_office/internal/seed"
)

type Publisher interface {
	Publish(ev domain.PushEvent) error
}

var workTasks = []string{
	"implement feature branch",
	"fix flaky test",
	"review pull request",
	"update dependencies",
	"write integration tests",
	"investigate timeout",
	"refactor handler",
	"draft release notes",
}

const (
	defaultReportInterval = 3 * time.Second
	// Odds per shift, out of 100.
	activeOdds = 55
	recentOdds = 25
	spawnOdds  = 6
)

type Worker struct {
	cfg      domain.AgentConfig
	pub      Publisher
	logger   *log.Logger
	interval time.Duration
	shiftSec int64

	inbox chan domain.TranscriptMessage

	mu           sync.Mutex
	paused       bool
	killed       bool
	messageCount int
	activeUntil  time.Time
	lastSpawn    int64
}

func NewWorker(cfg domain.AgentConfig, pub Publisher, interval time.Duration, logger *log.Logger) *Worker {
	if interval <= 0 {
		interval = defaultReportInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		cfg:      cfg,
		pub:      pub,
		logger:   logger,
		interval: interval,
		shiftSec: int64(seed.Range(cfg.ID+":shift-len", 45, 90)),
		inbox:    make(chan domain.TranscriptMessage, 16),
		// -1 so a spawn can fire in shift zero.
		lastSpawn: -1,
	}
}

func (w *Worker) ID() string { return w.cfg.ID }

func (w *Worker) Start(ctx context.Context) {
	go func() {
		w.report(time.Now().UTC())
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-w.inbox:
				w.handleMessage(msg)
			case <-ticker.C:
				if !w.report(time.Now().UTC()) {
					return
				}
			}
		}
	}()
}

// Pause forces the worker idle until Resume.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
	w.report(time.Now().UTC())
}

func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	w.report(time.Now().UTC())
}

// Kill permanently stops the worker; its final report is idle.
func (w *Worker) Kill() {
	w.mu.Lock()
	w.killed = true
	w.mu.Unlock()
	w.publish(w.observe(time.Now().UTC()))
}

// Deliver hands the worker a user message. The worker reacts on its next
// loop iteration.
func (w *Worker) Deliver(msg domain.TranscriptMessage) error {
	w.mu.Lock()
	killed := w.killed
	w.mu.Unlock()
	if killed {
		return fmt.Errorf("agent %s is dead", w.cfg.ID)
	}
	select {
	case w.inbox <- msg:
		return nil
	default:
		return fmt.Errorf("agent %s inbox is full", w.cfg.ID)
	}
}

func (w *Worker) handleMessage(msg domain.TranscriptMessage) {
	w.mu.Lock()
	w.messageCount++
	// A message wakes the worker for a couple of shifts.
	w.activeUntil = time.Now().UTC().Add(time.Duration(2*w.shiftSec) * time.Second)
	w.mu.Unlock()
	w.logger.Printf("agent %s received message from %s", w.cfg.ID, msg.Author)
	w.report(time.Now().UTC())
}

func (w *Worker) report(now time.Time) bool {
	ev := w.observe(now)
	if ev.Status == domain.AgentStatusActive {
		w.mu.Lock()
		w.messageCount++
		ev.MessageCount = w.messageCount
		w.mu.Unlock()
	}
	w.publish(ev)
	w.maybeSpawn(now)
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.killed
}

// observe derives the worker's current observation from the wall clock. It
// is pure given the worker's control state, so the same instant always
// yields the same report.
func (w *Worker) observe(now time.Time) domain.PushEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	ev := domain.PushEvent{
		Type:      domain.PushEventActivity,
		Agent:     w.cfg.ID,
		Status:    domain.AgentStatusIdle,
		Timestamp: now,
	}
	if w.killed || w.paused {
		return ev
	}

	shift := now.Unix() / w.shiftSec
	roll := seed.Roll(fmt.Sprintf("%s:shift:%d", w.cfg.ID, shift), 100)
	switch {
	case now.Before(w.activeUntil) || roll < activeOdds:
		ev.Status = domain.AgentStatusActive
		ev.Task = workTasks[seed.Roll(fmt.Sprintf("%s:task:%d", w.cfg.ID, shift), len(workTasks))]
		ev.MessageCount = w.messageCount
	case roll < activeOdds+recentOdds:
		ev.Status = domain.AgentStatusRecent
		ev.MessageCount = w.messageCount
	}
	return ev
}

// maybeSpawn emits at most one spawn event per shift, on a small seeded
// chance.
func (w *Worker) maybeSpawn(now time.Time) {
	w.mu.Lock()
	if w.killed || w.paused {
		w.mu.Unlock()
		return
	}
	shift := now.Unix() / w.shiftSec
	if shift == w.lastSpawn || seed.Roll(fmt.Sprintf("%s:spawn:%d", w.cfg.ID, shift), 100) >= spawnOdds {
		w.mu.Unlock()
		return
	}
	w.lastSpawn = shift
	w.mu.Unlock()

	w.publish(domain.PushEvent{
		Type:        domain.PushEventSpawn,
		Agent:       w.cfg.ID + "-task-" + uuid.NewString()[:8],
		ParentAgent: w.cfg.ID,
		Timestamp:   now,
	})
}

func (w *Worker) publish(ev domain.PushEvent) {
	if err := w.pub.Publish(ev); err != nil {
		w.logger.Printf("agent %s publish failed: %v", w.cfg.ID, err)
	}
}
