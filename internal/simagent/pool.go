package simagent

import (
	"context"
	"errors"
	"log"
	"time"

	"agent_office/internal/domain"
)

var ErrUnknownAgent = errors.New("no such agent")

// Pool owns one worker per configured agent and routes control operations
// to them by id.
type Pool struct {
	workers map[string]*Worker
	order   []string
}

func NewPool(agents []domain.AgentConfig, pub Publisher, interval time.Duration, logger *log.Logger) *Pool {
	p := &Pool{workers: make(map[string]*Worker, len(agents))}
	for _, cfg := range agents {
		if cfg.ID == "" {
			continue
		}
		p.workers[cfg.ID] = NewWorker(cfg, pub, interval, logger)
		p.order = append(p.order, cfg.ID)
	}
	return p
}

func (p *Pool) Start(ctx context.Context) {
	for _, id := range p.order {
		p.workers[id].Start(ctx)
	}
}

func (p *Pool) Pause(id string) error {
	w, ok := p.workers[id]
	if !ok {
		return ErrUnknownAgent
	}
	w.Pause()
	return nil
}

func (p *Pool) Resume(id string) error {
	w, ok := p.workers[id]
	if !ok {
		return ErrUnknownAgent
	}
	w.Resume()
	return nil
}

func (p *Pool) Kill(id string) error {
	w, ok := p.workers[id]
	if !ok {
		return ErrUnknownAgent
	}
	w.Kill()
	return nil
}

func (p *Pool) Deliver(id string, msg domain.TranscriptMessage) error {
	w, ok := p.workers[id]
	if !ok {
		return ErrUnknownAgent
	}
	return w.Deliver(msg)
}
