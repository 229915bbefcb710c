// Package workers runs the per-channel delivery handlers (spec §4.4): one
// asynq.ServeMux route per channel, wired onto a twelve-queue topology
// (internal/queue) with tier-local retry handled by asynq's own attempt
// counter and cross-tier escalation handled explicitly by the handler.
package workers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amityvox/notifyhub/internal/config"
	"github.com/amityvox/notifyhub/internal/queue"
)

// Manager owns the asynq.Server that drives every channel handler.
type Manager struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   *slog.Logger
	topology *queue.Topology
}

// Deps bundles the collaborators each channel handler needs. Collaborators
// are accepted as consumer-side interfaces (Repository, Mailer,
// SocketDeliverer, PushSender, TokenResolver, Enqueuer) so tests can
// substitute in-memory fakes instead of driving real Postgres/SMTP/FCM/
// Redis connections.
type Deps struct {
	Repo        Repository
	QueueClient Enqueuer
	Topology    *queue.Topology
	Mailer      Mailer
	Push        PushSender
	Tokens      TokenResolver
	Sockets     SocketDeliverer
	Logger      *slog.Logger
}

// New builds a Manager, registering one handler per channel task type. redisURL
// backs the asynq.Server's own Redis connection (distinct from the queue.Client
// used to enqueue jobs).
func New(redisURL string, qcfg config.QueueConfig, deps Deps) (*Manager, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URI: %w", err)
	}

	topo := deps.Topology
	if topo == nil {
		topo = queue.NewTopology(qcfg)
	}

	server := asynq.NewServer(opt, asynq.Config{
		Queues:      queue.QueuesConfig(qcfg),
		Concurrency: totalConcurrency(qcfg),
		Logger:      slogAdapter{deps.Logger},
		RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
			payload, err := queue.DecodeJobPayload(t.Payload())
			if err != nil {
				return 0
			}
			return queue.RetryDelayFor(topo, payload.Channel, payload.Tier)
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(string(queue.TaskEmailDeliver), &emailHandler{deps: deps, topology: topo})
	mux.Handle(string(queue.TaskInAppDeliver), &inAppHandler{deps: deps, topology: topo})
	mux.Handle(string(queue.TaskPushDeliver), &pushHandler{deps: deps, topology: topo})

	return &Manager{server: server, mux: mux, logger: deps.Logger, topology: topo}, nil
}

// Run starts processing tasks; it blocks until Shutdown is called or the
// server hits a fatal error.
func (m *Manager) Run() error {
	return m.server.Run(m.mux)
}

// Shutdown stops the server, waiting for in-flight tasks to finish.
func (m *Manager) Shutdown() {
	m.server.Shutdown()
}

func totalConcurrency(cfg config.QueueConfig) int {
	total := 0
	for _, w := range queue.QueuesConfig(cfg) {
		total += w
	}
	if total <= 0 {
		return 10
	}
	return total
}

// slogAdapter satisfies asynq.Logger on top of log/slog, matching the
// teacher's habit of bridging third-party logger interfaces onto slog
// rather than adopting a second logging library.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...any) { a.logger.Error(fmt.Sprint(args...)) }
