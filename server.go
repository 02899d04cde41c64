package littlewebserver

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/kalenfox/littlewebserver/routepath"
)

// Server embeds and serves one or more listeners running the connection
// worker state machine described in spec §4.5. It is the single point of
// explicit context a handler receives on its Request, replacing the
// teacher's thread-local `Air` access pattern (spec §9 Design Notes).
type Server struct {
	Config *Config
	Logger *Logger

	// Router turns a parsed Request into a Response. It must be set
	// before Serve is called; a nil Router causes every request to
	// receive a bare 404.
	Router RouteController

	// Sessions is the external session collaborator described in spec
	// §4.6. NewServer sets it to an InMemorySessionManager; a nil value
	// turns session binding and session cookies off.
	Sessions SessionManager

	// ContentTypes is the host-provided file-extension registry used to
	// infer a Content-Type for file response bodies. Defaults to a
	// registry seeded with common extensions.
	ContentTypes *contentTypeRegistry

	// Transformers resolves named value transformers referenced by a
	// RoutePath, per spec §4.3.
	Transformers routepath.TransformerRegistry

	// Queues is the admission controller described in spec §5.
	Queues *WorkerQueueController

	pool   *objectPool
	coffer *coffer

	mu        sync.Mutex
	listeners []*listener
	addresses map[string]int
	stopping  bool

	shutdownJobMutex sync.Mutex
	shutdownJobs     []func()
	shutdownJobDone  chan struct{}

	maintenanceOnce sync.Once
	closeOnce       sync.Once
	done            chan struct{}

	wg sync.WaitGroup
}

// sessionSweeper is implemented by a SessionManager that can proactively
// drop its own expired entries instead of only expiring lazily on Load. The
// background session-checker uses this so a session nobody ever looks up
// again doesn't leak forever.
type sessionSweeper interface {
	sweepExpired()
}

// NewServer returns a Server configured from c. c is normalized (and
// defaulted) in place; pass nil to use package defaults.
func NewServer(c *Config) (*Server, error) {
	if c == nil {
		c = NewConfig()
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}

	queues, err := newWorkerQueueController(c.GlobalMaxInFlight, c.RequestQueueMaxInFlight)
	if err != nil {
		return nil, err
	}

	logger := newLogger(c.LogFormat, c.DebugMode)

	s := &Server{
		Config:          c,
		Logger:          logger,
		Sessions:        NewInMemorySessionManager(c.SessionTimeoutSeconds),
		ContentTypes:    newContentTypeRegistry(),
		Transformers:    routepath.TransformerRegistry{},
		Queues:          queues,
		pool:            newObjectPool(),
		coffer:          newCoffer(32*1024*1024, logger),
		addresses:       map[string]int{},
		shutdownJobDone: make(chan struct{}),
		done:            make(chan struct{}),
	}
	return s, nil
}

// RegisterQueue declares a named WorkerQueue with a bounded in-flight count
// (-1 for unlimited), per spec §3. It must be called before a Response ever
// names queue as its WriteQueue.
func (s *Server) RegisterQueue(name string, max int) error {
	return s.Queues.registerQueue(name, max)
}

// NewSession allocates a new, unsaved Session. See Request.StartSession.
func (s *Server) NewSession() *Session {
	id, err := newSessionID()
	if err != nil {
		s.reportError(err)
	}
	return &Session{ID: id, isNew: true}
}

// isStopping reports whether Close or Shutdown has begun.
func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// reportError forwards err to the Logger's server-error hook, per spec §7.
func (s *Server) reportError(err error) {
	if err == nil {
		return
	}
	s.Logger.ReportError(err)
}

// Serve listens on s.Config.Network/s.Config.Address and blocks serving
// connections until the listener is closed via Close or Shutdown. To serve
// more than one address from the same Server (spec §9 supplemented feature:
// multiple listen addresses), call ListenAndServe directly for each
// additional address from its own goroutine.
func (s *Server) Serve() error {
	return s.ListenAndServe(s.Config.Network, s.Config.Address)
}

// ListenAndServe listens on network/address and serves accepted connections
// until the listener is closed, following the teacher's listener-per-address
// tracking in Air.Serve (a.addressMap).
func (s *Server) ListenAndServe(network, address string) error {
	l, err := newListener(network, address, s.Config.KeepAliveTimeout)
	if err != nil {
		return err
	}

	s.maintenanceOnce.Do(func() {
		s.wg.Add(1)
		go s.runMaintenance()
	})

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		l.Close()
		return fmt.Errorf("littlewebserver: server is stopping")
	}
	idx := len(s.listeners)
	s.listeners = append(s.listeners, l)
	s.addresses[l.Addr().String()] = idx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.addresses, l.Addr().String())
		s.mu.Unlock()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isStopping() {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		admitted := s.Queues.submit(requestQueueName, func() {
			defer s.wg.Done()
			newConnectionWorker(s, conn).serve()
		})
		if !admitted {
			s.wg.Done()
			conn.Close()
		}
	}
}

// runMaintenance is the background "session-checker" named by spec §5: it
// periodically sweeps sessions expired in the SessionManager and reconciles
// the upload coffer against orphaned temp files, polling the process-wide
// stopping signal the same way the worker loop and wait-for-capacity do.
func (s *Server) runMaintenance() {
	defer s.wg.Done()

	interval := s.Config.SessionSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if sweeper, ok := s.Sessions.(sessionSweeper); ok {
				sweeper.sweepExpired()
			}
			if s.coffer != nil {
				s.coffer.sweepOrphans()
			}
		}
	}
}

// Close closes every listener immediately, without waiting for in-flight
// connections to finish. See spec §5 cancellation.
func (s *Server) Close() error {
	s.mu.Lock()
	s.stopping = true
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })

	s.Queues.stop()

	var firstErr error
	for _, l := range listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown gracefully shuts the server down: it closes every listener so no
// new connection is accepted, runs every registered shutdown job
// concurrently, and waits for both the shutdown jobs and every in-flight
// connection worker to finish, or for ctx to expire, whichever comes first.
// See the teacher's Air.Shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()

	go func() {
		s.runShutdownJobs()
		s.wg.Wait()
		close(s.shutdownJobDone)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdownJobDone:
		return err
	}
}

func (s *Server) runShutdownJobs() {
	s.shutdownJobMutex.Lock()
	jobs := make([]func(), len(s.shutdownJobs))
	copy(jobs, s.shutdownJobs)
	s.shutdownJobMutex.Unlock()

	var wg sync.WaitGroup
	for _, job := range jobs {
		if job == nil {
			continue
		}
		wg.Add(1)
		go func(job func()) {
			defer wg.Done()
			job()
		}(job)
	}
	wg.Wait()
}

// AddShutdownJob registers f to run exactly once, concurrently with every
// other shutdown job, when Shutdown is called. It returns an id that can be
// passed to RemoveShutdownJob. See the teacher's Air.AddShutdownJob.
func (s *Server) AddShutdownJob(f func()) int {
	s.shutdownJobMutex.Lock()
	defer s.shutdownJobMutex.Unlock()
	s.shutdownJobs = append(s.shutdownJobs, f)
	return len(s.shutdownJobs) - 1
}

// RemoveShutdownJob removes the shutdown job identified by id, following
// the teacher's Air.RemoveShutdownJob (nil out rather than splice, so
// previously returned ids stay valid).
func (s *Server) RemoveShutdownJob(id int) {
	s.shutdownJobMutex.Lock()
	defer s.shutdownJobMutex.Unlock()
	if id >= 0 && id < len(s.shutdownJobs) {
		s.shutdownJobs[id] = nil
	}
}

// Addresses returns every address the server is actually listening on, in
// listener-registration order, following the teacher's Air.Addresses.
func (s *Server) Addresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.addresses) == 0 {
		return nil
	}
	as := make([]string, 0, len(s.addresses))
	for a := range s.addresses {
		as = append(as, a)
	}
	sort.Slice(as, func(i, j int) bool {
		return s.addresses[as[i]] < s.addresses[as[j]]
	})
	return as
}

var _ net.Listener = (*listener)(nil)
