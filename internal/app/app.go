package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/racetrial/internal/auth"
	"github.com/abrezinsky/racetrial/internal/clock"
	"github.com/abrezinsky/racetrial/internal/handlers"
	"github.com/abrezinsky/racetrial/internal/logger"
	"github.com/abrezinsky/racetrial/internal/repository"
	"github.com/abrezinsky/racetrial/internal/services"
	"github.com/abrezinsky/racetrial/internal/websocket"
)

// DefaultTickRate is how often live events are advanced when Config.TickRate is unset.
const DefaultTickRate = 50 * time.Millisecond

// Config holds the runtime options for an App.
type Config struct {
	DBPath   string
	TickRate time.Duration
}

// App holds all application dependencies
type App struct {
	log       logger.Logger
	handlers  *handlers.Handlers
	repo      *repository.Repository
	events    *services.EventService
	stopLoops context.CancelFunc
	loopsDone chan struct{}

	mu     sync.Mutex
	server *http.Server
}

// New creates and initializes a new application instance. The engine loop and the
// result writer start immediately and run until Close.
func New(log logger.Logger, cfg Config, templatesFS, staticFS fs.FS, adminAuth *auth.Auth) (*App, error) {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}

	repo, err := repository.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	hub := websocket.New(log)

	routeService := services.NewRouteService(log, repo)
	settingsService := services.NewSettingsService(log, repo)
	resultsService := services.NewResultsService(log, repo)
	eventService := services.NewEventService(log, repo, routeService, settingsService, resultsService, clock.System{}, hub)

	resultsService.SetBroadcaster(hub)
	hub.SetSnapshotSource(eventService)
	hub.Start()

	if err := eventService.LoadEvents(context.Background()); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	h, err := handlers.New(
		routeService,
		eventService,
		settingsService,
		resultsService,
		templatesFS,
		handlers.NewStaticServer(staticFS),
		adminAuth,
		hub,
		log,
	)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		writerDone := make(chan struct{})
		go func() {
			eventService.RunResultWriter(ctx)
			close(writerDone)
		}()
		eventService.Run(ctx, cfg.TickRate)
		<-writerDone
	}()

	return &App{
		log:       log,
		handlers:  h,
		repo:      repo,
		events:    eventService,
		stopLoops: cancel,
		loopsDone: done,
	}, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Close stops the engine loop, flushes queued results and shuts the server down.
// It is safe to call more than once.
func (a *App) Close() {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		server.Shutdown(ctx)
		cancel()
	}
	if a.stopLoops != nil {
		a.stopLoops()
		<-a.loopsDone
	}
}

// Run starts the HTTP server. It returns nil once Close shuts the server down.
func (a *App) Run(addr string) error {
	// Set default base URL if not configured, using detected LAN IP
	ip := getPreferredIP(realNetworkProvider{})
	baseURL := fmt.Sprintf("http://%s%s", ip, addr)
	a.setDefaultBaseURL(baseURL)

	a.log.Info("Server starting", "url", baseURL)
	a.log.Info("Live board URL", "url", baseURL+"/")
	a.log.Info("Admin URL", "url", baseURL+"/admin")

	server := &http.Server{Addr: addr, Handler: a.Router()}
	a.mu.Lock()
	a.server = server
	a.mu.Unlock()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setDefaultBaseURL sets the base URL setting if not already configured
// or if current value uses localhost (which isn't useful for QR codes)
func (a *App) setDefaultBaseURL(baseURL string) {
	ctx := context.Background()
	existing, _ := a.repo.GetSetting(ctx, services.KeyBaseURL)

	if existing == "" || strings.Contains(existing, "localhost") {
		if err := a.repo.SetSetting(ctx, services.KeyBaseURL, baseURL); err != nil {
			a.log.Warn("Failed to set default base_url", "error", err)
		} else {
			a.log.Info("Default base URL set", "url", baseURL)
		}
	}
}

// networkInterface wraps net.Interface for testing
type networkInterface interface {
	Flags() net.Flags
	Addrs() ([]net.Addr, error)
}

type realInterface struct {
	iface net.Interface
}

func (r realInterface) Flags() net.Flags {
	return r.iface.Flags
}

func (r realInterface) Addrs() ([]net.Addr, error) {
	return r.iface.Addrs()
}

// networkProvider is an interface for getting network interfaces (for testing)
type networkProvider interface {
	Interfaces() ([]networkInterface, error)
}

type realNetworkProvider struct{}

func (realNetworkProvider) Interfaces() ([]networkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]networkInterface, len(ifaces))
	for i, iface := range ifaces {
		result[i] = realInterface{iface: iface}
	}
	return result, nil
}

// getPreferredIP returns the best IPv4 address for phones on the same LAN to reach the
// board. Private ranges win over public ones; localhost is the last resort.
func getPreferredIP(provider networkProvider) string {
	ifaces, err := provider.Interfaces()
	if err != nil {
		return "localhost"
	}

	var candidates []net.IP
	for _, iface := range ifaces {
		flags := iface.Flags()
		if flags&net.FlagUp == 0 || flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil || ip.IsLoopback() {
				continue
			}
			candidates = append(candidates, ip)
		}
	}

	for _, ip := range candidates {
		if ip.IsPrivate() {
			return ip.String()
		}
	}
	if len(candidates) > 0 {
		return candidates[0].String()
	}
	return "localhost"
}
