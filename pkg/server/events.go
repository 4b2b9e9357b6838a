package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType names one of the consumer-facing event/response kinds.
type EventType string

const (
	EventLogsPage     EventType = "logs.page.response"
	EventLogsState    EventType = "logs.state"
	EventSearchResult EventType = "search.results"
	EventProgress     EventType = "merge.progress"
	EventSaved        EventType = "merge.saved"
	EventError        EventType = "error"
)

// Event is one SSE frame: a tagged event name plus its JSON payload.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// EventBroker fans merge.progress/merge.saved/logs.state/error events out
// to every subscribed SSE client.
type EventBroker struct {
	clients      map[chan Event]struct{}
	clientsMutex sync.RWMutex
	logger       *slog.Logger
}

// NewEventBroker creates a new event broker.
func NewEventBroker(logger *slog.Logger) *EventBroker {
	return &EventBroker{
		clients: make(map[chan Event]struct{}),
		logger:  logger,
	}
}

// Subscribe adds a new client to receive events.
func (b *EventBroker) Subscribe() chan Event {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	client := make(chan Event, 32)
	b.clients[client] = struct{}{}
	b.logger.Debug("client subscribed to events", "total_clients", len(b.clients))
	return client
}

// Unsubscribe removes a client from receiving events.
func (b *EventBroker) Unsubscribe(client chan Event) {
	b.clientsMutex.Lock()
	defer b.clientsMutex.Unlock()

	delete(b.clients, client)
	close(client)
	b.logger.Debug("client unsubscribed from events", "total_clients", len(b.clients))
}

// ClientCount returns the number of active clients.
func (b *EventBroker) ClientCount() int {
	b.clientsMutex.RLock()
	defer b.clientsMutex.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all subscribed clients, skipping any client
// that isn't reading within the timeout rather than blocking the merge.
func (b *EventBroker) Broadcast(event Event) {
	b.clientsMutex.RLock()
	defer b.clientsMutex.RUnlock()

	for client := range b.clients {
		select {
		case client <- event:
		case <-time.After(100 * time.Millisecond):
			b.logger.Warn("client not reading events, skipping", "type", event.Type)
		}
	}
}

// eventsHandler handles SSE connections, streaming merge.progress,
// merge.saved, logs.state, and error events as they are broadcast.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	eventChan := s.eventBroker.Subscribe()
	defer s.eventBroker.Unsubscribe(eventChan)

	fmt.Fprintf(w, "event: connected\ndata: {\"message\":\"connected\"}\n\n")
	flusher.Flush()

	ctx := r.Context()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("client disconnected")
			return

		case event := <-eventChan:
			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Error("failed to marshal event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

// ConfigWatcher watches the parser template file and hot-reloads the
// compiled rule set on change.
type ConfigWatcher struct {
	watcher      *fsnotify.Watcher
	server       *Server
	templatePath string
	logger       *slog.Logger
	isReloading  bool
	reloadMutex  sync.Mutex
	lastReload   time.Time
	debounceTime time.Duration
}

// NewConfigWatcher creates a watcher on the server's parser template file.
func NewConfigWatcher(server *Server, templatePath string, logger *slog.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &ConfigWatcher{
		watcher:      watcher,
		server:       server,
		templatePath: templatePath,
		logger:       logger,
		debounceTime: 1 * time.Second,
	}, nil
}

// Start begins watching the template file.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if err := cw.watcher.Add(cw.templatePath); err != nil {
		return fmt.Errorf("failed to watch parser template: %w", err)
	}
	cw.logger.Info("started watching parser template", "path", cw.templatePath)
	go cw.watch(ctx)
	return nil
}

func (cw *ConfigWatcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("config watcher stopped")
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				cw.logger.Info("parser template changed", "op", event.Op.String(), "path", event.Name)
				cw.handleReload()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("config watcher error", "err", err)
		}
	}
}

func (cw *ConfigWatcher) handleReload() {
	cw.reloadMutex.Lock()
	defer cw.reloadMutex.Unlock()

	if time.Since(cw.lastReload) < cw.debounceTime {
		cw.logger.Debug("template change ignored (debounced)")
		return
	}
	if cw.isReloading {
		return
	}
	cw.isReloading = true
	defer func() {
		cw.isReloading = false
		cw.lastReload = time.Now()
	}()

	if err := cw.server.ReloadParserTemplate(); err != nil {
		cw.logger.Error("failed to reload parser template", "err", err)
		cw.server.eventBroker.Broadcast(Event{
			Type: EventError,
			Data: ErrorResponse{Code: ErrConfigError, Message: fmt.Sprintf("failed to reload parser template: %v", err)},
		})
		return
	}
	cw.logger.Info("parser template reloaded")
}

// Stop stops watching the template file.
func (cw *ConfigWatcher) Stop() error {
	return cw.watcher.Close()
}
