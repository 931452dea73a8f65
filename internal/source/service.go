// Package source runs the activity source: it consumes worker events from
// the in-process bus, keeps the latest observation per agent, persists
// history, and serves the pull and push feeds over HTTP.
package source

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agent_office/internal/domain"
)

const busSubscriber = "source-service"

// History is the slice of the sqlite store the service needs.
type History interface {
	RecordObservation(ctx context.Context, item domain.ActivityItem, now time.Time) error
	PruneObservations(ctx context.Context, agentID string, keep int) error
	RecordSpawn(ctx context.Context, rec domain.SpawnAnimationRecord) error
	AppendTranscript(ctx context.Context, msg domain.TranscriptMessage) error
	ListTranscript(ctx context.Context, agentID string, limit int) ([]domain.TranscriptMessage, error)
}

// Controller routes control operations to the worker pool.
type Controller interface {
	Pause(id string) error
	Resume(id string) error
	Kill(id string) error
	Deliver(id string, msg domain.TranscriptMessage) error
}

// EventBus is the subscription side of the in-process bus.
type EventBus interface {
	Subscribe(name string) (<-chan domain.PushEvent, error)
}

type Config struct {
	PingInterval time.Duration
	HistoryLimit int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 200
	}
	return c
}

type Service struct {
	cfg     Config
	bus     EventBus
	history History
	control Controller
	hub     *Hub
	logger  *log.Logger

	mu     sync.Mutex
	latest map[string]domain.ActivityItem
}

func New(cfg Config, bus EventBus, history History, control Controller, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		bus:     bus,
		history: history,
		control: control,
		hub:     newHub(logger),
		logger:  logger,
		latest:  make(map[string]domain.ActivityItem),
	}
}

func (s *Service) Hub() *Hub { return s.hub }

// Start consumes the bus until ctx is cancelled. It is the only goroutine
// that broadcasts to the hub.
func (s *Service) Start(ctx context.Context) error {
	events, err := s.bus.Subscribe(busSubscriber)
	if err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.handleEvent(ctx, ev)
			case <-ticker.C:
				s.hub.Broadcast(domain.PushEvent{
					Type:      domain.PushEventPing,
					Timestamp: time.Now().UTC(),
				})
			}
		}
	}()
	return nil
}

func (s *Service) handleEvent(ctx context.Context, ev domain.PushEvent) {
	switch ev.Type {
	case domain.PushEventActivity:
		item := ev.ActivityItem()
		if item.AgentID == "" || !item.Status.Valid() {
			s.logger.Printf("dropping malformed activity event %+v", ev)
			return
		}
		s.mu.Lock()
		s.latest[item.AgentID] = item
		s.mu.Unlock()
		if err := s.history.RecordObservation(ctx, item, time.Now().UTC()); err != nil {
			s.logger.Printf("record observation failed: %v", err)
		} else if err := s.history.PruneObservations(ctx, item.AgentID, s.cfg.HistoryLimit); err != nil {
			s.logger.Printf("prune observations failed: %v", err)
		}
	case domain.PushEventSpawn:
		if ev.Agent == "" || ev.ParentAgent == "" {
			s.logger.Printf("dropping malformed spawn event %+v", ev)
			return
		}
		if err := s.history.RecordSpawn(ctx, domain.SpawnAnimationRecord{
			ID:        uuid.NewString(),
			ParentID:  ev.ParentAgent,
			ChildID:   ev.Agent,
			CreatedAt: ev.Timestamp,
		}); err != nil {
			s.logger.Printf("record spawn failed: %v", err)
		}
	default:
		return
	}
	s.hub.Broadcast(ev)
}

// Activity is the pull snapshot: the latest observation per agent, ordered
// by agent id.
func (s *Service) Activity() []domain.ActivityItem {
	s.mu.Lock()
	items := make([]domain.ActivityItem, 0, len(s.latest))
	for _, item := range s.latest {
		items = append(items, item)
	}
	s.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].AgentID < items[j].AgentID })
	return items
}
