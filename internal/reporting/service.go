package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"voicecall-platform/internal/elevenlabs"
)

const (
	DefaultPageSize    = 100
	DefaultConcurrency = 8

	// maxPages stops a vendor that keeps handing out tokens.
	maxPages = 1000
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Source is the slice of the vendor client reporting reads from.
type Source interface {
	ListConversations(ctx context.Context, q elevenlabs.ConversationQuery) (elevenlabs.ConversationPage, error)
	GetConversation(ctx context.Context, conversationID string) (elevenlabs.Conversation, error)
}

type Options struct {
	Source Source
	Cache  Cache

	// DefaultAgentID is used when a query names no agent.
	DefaultAgentID string
	PageSize       int
	Concurrency    int

	// OnCache observes cache lookups with "hit", "miss" or "error".
	OnCache func(result string)

	Logger *slog.Logger
	Clock  func() time.Time
}

// Service builds per-agent call statistics from the vendor's conversation history.
type Service struct {
	src          Source
	cache        Cache
	defaultAgent string
	pageSize     int
	concurrency  int
	onCache      func(string)
	log          *slog.Logger
	clock        func() time.Time
}

func NewService(opts Options) *Service {
	s := &Service{
		src:          opts.Source,
		cache:        opts.Cache,
		defaultAgent: opts.DefaultAgentID,
		pageSize:     opts.PageSize,
		concurrency:  opts.Concurrency,
		onCache:      opts.OnCache,
		log:          opts.Logger,
		clock:        opts.Clock,
	}
	if s.pageSize <= 0 {
		s.pageSize = DefaultPageSize
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Stats returns the aggregate for q.AgentID, from cache unless q.Refresh is set.
func (s *Service) Stats(ctx context.Context, q Query) (Stats, error) {
	agentID := q.AgentID
	if agentID == "" {
		agentID = s.defaultAgent
	}
	if agentID == "" || !elevenlabs.ValidIdentifier(agentID) {
		return Stats{}, ErrInvalidRequest
	}
	if s.src == nil {
		return Stats{}, errors.New("reporting: source not configured")
	}
	log := s.log.With("component", "reporting", "agent_id", agentID)
	key := cacheKey(agentID)

	if s.cache != nil && !q.Refresh {
		var cached Stats
		err := s.cache.Get(ctx, key, &cached)
		switch {
		case err == nil:
			s.observeCache("hit")
			cached.Cached = true
			return cached, nil
		case errors.Is(err, ErrCacheMiss):
			s.observeCache("miss")
		default:
			s.observeCache("error")
			log.Warn("stats cache read failed", "err", err)
		}
	}

	rows, err := s.listAll(ctx, agentID)
	if err != nil {
		return Stats{}, err
	}
	rows, err = s.enrich(ctx, rows)
	if err != nil {
		return Stats{}, err
	}

	st := Aggregate(agentID, rows)
	st.GeneratedAt = s.clock().UTC()
	log.Info("stats computed", "total_calls", st.TotalCalls, "total_minutes", st.TotalMinutes)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, st); err != nil {
			log.Warn("stats cache write failed", "err", err)
		}
	}
	return st, nil
}

func (s *Service) observeCache(result string) {
	if s.onCache != nil {
		s.onCache(result)
	}
}

// listAll pages through the listing until the vendor stops returning a token.
func (s *Service) listAll(ctx context.Context, agentID string) ([]ConversationRow, error) {
	var (
		rows  []ConversationRow
		token string
	)
	for page := 0; page < maxPages; page++ {
		res, err := s.src.ListConversations(ctx, elevenlabs.ConversationQuery{
			AgentID:   agentID,
			PageSize:  s.pageSize,
			PageToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list conversations page %d: %w", page+1, err)
		}
		for _, c := range res.Conversations {
			rows = append(rows, ConversationRow{ConversationSummary: c})
		}
		if res.NextPageToken == "" || res.NextPageToken == token {
			return rows, nil
		}
		token = res.NextPageToken
	}
	s.log.Warn("conversation listing truncated", "agent_id", agentID, "pages", maxPages)
	return rows, nil
}

// enrich fetches every conversation detail with bounded concurrency. A failed
// detail keeps the listed row as is; only cancellation aborts.
func (s *Service) enrich(ctx context.Context, rows []ConversationRow) ([]ConversationRow, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range rows {
		i := i
		id := rows[i].ConversationID
		if id == "" {
			continue
		}
		g.Go(func() error {
			conv, err := s.src.GetConversation(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Debug("conversation detail unavailable", "conversation_id", id, "err", err)
				return nil
			}
			rows[i].TelefonoDestino = conv.CalledNumber()
			rows[i].NombrePaciente = conv.DynamicVariable("nombre_paciente")
			rows[i].Producto = conv.DynamicVariable("producto")
			rows[i].Enriched = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}
