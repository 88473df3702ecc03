// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/connection"
	"github.com/smartdevs17/coinwatch-gateway/internal/gateway"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/internal/notification"
	"github.com/smartdevs17/coinwatch-gateway/internal/poller"
	"github.com/smartdevs17/coinwatch-gateway/internal/storage"
	"github.com/smartdevs17/coinwatch-gateway/pkg/coinaddr"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
	"github.com/smartdevs17/coinwatch-gateway/pkg/validation"
)

// Version is reported by the health endpoint
var Version = "dev"

// ContractReader is the read side of the gateway
type ContractReader interface {
	Contract() common.Address
	GetStatistics(ctx context.Context, contract common.Address) (*models.ContractStatistics, error)
	GetWatchList(ctx context.Context, contract common.Address) ([]*models.WatchListEntry, error)
	LookupAddress(ctx context.Context, contract common.Address, address string) (*models.WatchListEntry, error)
}

// Watcher submits watch requests and lists the journal
type Watcher interface {
	Watch(ctx context.Context, address string) (*models.WatchSubmission, error)
	Submissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.WatchSubmission, error)
}

// NodeStatus reports node connectivity
type NodeStatus interface {
	Status(ctx context.Context) connection.ConnectionStats
}

// PollerStatus reports owner updater statistics
type PollerStatus interface {
	GetStats() poller.UpdaterStats
}

// Dependencies are the components the server exposes. Node, Journal,
// Notifications, Poller and Metrics are optional.
type Dependencies struct {
	Gateway       ContractReader
	Watcher       Watcher
	Node          NodeStatus
	Journal       storage.Storage
	Notifications *notification.NotificationManager
	Poller        PollerStatus
	Metrics       *metrics.Manager
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	gateway        ContractReader
	watcher        Watcher
	node           NodeStatus
	journal        storage.Storage
	notification   *notification.NotificationManager
	poller         PollerStatus
	metricsManager *metrics.Manager
	logger         *logrus.Entry
	stop           chan struct{}
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(cfg *config.ServerConfig, deps Dependencies) (*HTTPServer, error) {
	if deps.Gateway == nil || deps.Watcher == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "HTTP server needs a gateway and a watcher", "")
	}

	server := &HTTPServer{
		config:         cfg,
		gateway:        deps.Gateway,
		watcher:        deps.Watcher,
		node:           deps.Node,
		journal:        deps.Journal,
		notification:   deps.Notifications,
		poller:         deps.Poller,
		metricsManager: deps.Metrics,
		logger:         utils.ComponentLogger("http_server"),
		stop:           make(chan struct{}),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server, nil
}

// Handler returns the routed handler
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
	}

	// Contract
	api.HandleFunc("/statistics", s.statisticsHandler).Methods("GET")
	api.HandleFunc("/watchlist", s.watchListHandler).Methods("GET")
	api.HandleFunc("/addresses/{address}", s.addressHandler).Methods("GET")
	api.HandleFunc("/watch", s.watchHandler).Methods("POST", "OPTIONS")

	// Journal
	api.HandleFunc("/submissions", s.listSubmissionsHandler).Methods("GET")
	api.HandleFunc("/notifications", s.listNotificationsHandler).Methods("GET")

	// Address codec
	api.HandleFunc("/convert/hex/{hex}", s.hexToAddressHandler).Methods("GET")
	api.HandleFunc("/convert/address/{address}", s.addressToHexHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
		"contract":        s.gateway.Contract().Hex(),
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentMetrics(context.Background())
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// surface immediate bind errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.updateComponentMetrics(context.Background())
		}
	}
}

func (s *HTTPServer) updateComponentMetrics(ctx context.Context) {
	s.metricsManager.UpdateSystemMetrics()
	prom := s.metricsManager.GetPrometheusMetrics()

	if s.journal != nil {
		prom.UpdateComponentHealth("storage", s.journal.Ping(ctx) == nil)
	}
	if s.notification != nil {
		prom.UpdateComponentHealth("notification", s.notification.GetStats().ActiveChannels > 0)
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	close(s.stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Health Handlers

// healthHandler reports node, journal and notification health
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := true
	components := map[string]interface{}{}

	if s.node != nil {
		stats := s.node.Status(r.Context())
		healthy = healthy && stats.IsHealthy
		components["node"] = stats
	}

	if s.journal != nil {
		journal := map[string]interface{}{"healthy": true}
		if err := s.journal.Ping(r.Context()); err != nil {
			healthy = false
			journal["healthy"] = false
			journal["error"] = err.Error()
		} else if stats, err := s.journal.GetStorageStats(r.Context()); err == nil {
			journal["stats"] = stats
		}
		components["journal"] = journal
	}

	if s.notification != nil {
		components["notification"] = s.notification.GetStats()
	}
	if s.poller != nil {
		components["poller"] = s.poller.GetStats()
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"version":    Version,
		"contract":   s.gateway.Contract().Hex(),
		"components": components,
	})
}

// Contract Handlers

type statisticsResponse struct {
	*models.ContractStatistics
	LastUpdatedAgo string `json:"last_updated_ago"`
}

type watchListEntryResponse struct {
	*models.WatchListEntry
	LastUpdatedAgo string `json:"last_updated_ago"`
	LastWatchedAgo string `json:"last_watched_ago"`
}

func newWatchListEntryResponse(entry *models.WatchListEntry) watchListEntryResponse {
	return watchListEntryResponse{
		WatchListEntry: entry,
		LastUpdatedAgo: gateway.EpochFromNow(entry.LastUpdated),
		LastWatchedAgo: gateway.EpochFromNow(entry.LastWatched),
	}
}

// statisticsHandler returns the contract statistics
func (s *HTTPServer) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.gateway.GetStatistics(r.Context(), s.gateway.Contract())
	if err != nil {
		s.writeAppError(w, "Failed to read contract statistics", err)
		return
	}

	s.writeJSON(w, http.StatusOK, statisticsResponse{
		ContractStatistics: stats,
		LastUpdatedAgo:     gateway.EpochFromNow(stats.LastUpdated),
	})
}

// watchListHandler returns every watched address with its record
func (s *HTTPServer) watchListHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.gateway.GetWatchList(r.Context(), s.gateway.Contract())
	if err != nil {
		s.writeAppError(w, "Failed to read watch list", err)
		return
	}

	response := make([]watchListEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, newWatchListEntryResponse(entry))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": response,
		"count":   len(response),
	})
}

// addressHandler returns the record stored for one encoded address
func (s *HTTPServer) addressHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	entry, err := s.gateway.LookupAddress(r.Context(), s.gateway.Contract(), address)
	if err != nil {
		s.writeAppError(w, "Failed to read address record", err)
		return
	}

	s.writeJSON(w, http.StatusOK, newWatchListEntryResponse(entry))
}

type watchRequest struct {
	Address string `json:"address" validate:"required"`
}

// watchHandler submits a watch command for the posted address
func (s *HTTPServer) watchHandler(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}
	if err := validation.Struct(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid watch request", err)
		return
	}

	submission, err := s.watcher.Watch(r.Context(), req.Address)
	if err != nil {
		s.writeAppError(w, "Failed to watch address", err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, submission)
}

// Journal Handlers

// listSubmissionsHandler lists journaled submissions
func (s *HTTPServer) listSubmissionsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSubmissionFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	submissions, err := s.watcher.Submissions(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, "Failed to list submissions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"submissions": submissions,
		"count":       len(submissions),
		"limit":       filter.Limit,
		"offset":      filter.Offset,
	})
}

// listNotificationsHandler lists the most recent recorded notifications
func (s *HTTPServer) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := storage.DefaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit parameter", err)
			return
		}
		limit = parsed
	}

	notifications := []*models.Notification{}
	if s.journal != nil {
		var err error
		notifications, err = s.journal.GetNotifications(r.Context(), limit)
		if err != nil {
			s.writeAppError(w, "Failed to list notifications", err)
			return
		}
		if notifications == nil {
			notifications = []*models.Notification{}
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

func parseSubmissionFilter(r *http.Request) (models.SubmissionFilter, error) {
	query := r.URL.Query()
	filter := models.SubmissionFilter{Limit: storage.DefaultListLimit}

	if kind := query.Get("kind"); kind != "" {
		k := models.SubmissionKind(kind)
		if k != models.SubmissionKindWatch && k != models.SubmissionKindUpdate {
			return filter, fmt.Errorf("unknown kind %q", kind)
		}
		filter.Kind = &k
	}

	if status := query.Get("status"); status != "" {
		switch status {
		case models.SubmissionStatusSubmitted, models.SubmissionStatusAccepted, models.SubmissionStatusFailed:
		default:
			return filter, fmt.Errorf("unknown status %q", status)
		}
		filter.Status = &status
	}

	if address := query.Get("address"); address != "" {
		filter.Address = &address
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", limitStr)
		}
		filter.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filter, fmt.Errorf("invalid offset %q", offsetStr)
		}
		filter.Offset = offset
	}

	return filter, nil
}

// Address Codec Handlers

// convertResponse reports both forms of an address and its version byte
type convertResponse struct {
	Address string `json:"address"`
	Hex     string `json:"hex"`
	Version byte   `json:"version"`
}

func (s *HTTPServer) hexToAddressHandler(w http.ResponseWriter, r *http.Request) {
	hexStr := mux.Vars(r)["hex"]

	address, err := coinaddr.HexToAddress(hexStr)
	if err != nil {
		s.writeAppError(w, "Failed to encode address", err)
		return
	}
	s.writeConversion(w, address, hexStr)
}

func (s *HTTPServer) addressToHexHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	hexStr, err := coinaddr.AddressToHex(address)
	if err != nil {
		s.writeAppError(w, "Failed to decode address", err)
		return
	}
	s.writeConversion(w, address, hexStr)
}

func (s *HTTPServer) writeConversion(w http.ResponseWriter, address, hexStr string) {
	version, err := coinaddr.Version(address)
	if err != nil {
		s.writeAppError(w, "Failed to decode address", err)
		return
	}
	s.writeJSON(w, http.StatusOK, convertResponse{Address: address, Hex: hexStr, Version: version})
}

// Utility Methods

// statusFor maps an application error code to an HTTP status
func statusFor(err error) int {
	switch {
	case utils.IsCode(err, utils.ErrCodeAddressDecode), utils.IsCode(err, utils.ErrCodeValidation):
		return http.StatusBadRequest
	case utils.IsCode(err, utils.ErrCodeNotFound):
		return http.StatusNotFound
	case utils.IsCode(err, utils.ErrCodeNotOwner):
		return http.StatusForbidden
	case utils.IsCode(err, utils.ErrCodeExternalCall), utils.IsCode(err, utils.ErrCodeConnection):
		return http.StatusBadGateway
	case utils.IsCode(err, utils.ErrCodeConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError writes err with the status its code maps to
func (s *HTTPServer) writeAppError(w http.ResponseWriter, message string, err error) {
	s.writeError(w, statusFor(err), message, err)
}

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			errorResponse["code"] = appErr.Code
		}

		entry := s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("HTTP error")
		} else {
			entry.Warn("HTTP error")
		}
	}

	s.writeJSON(w, status, errorResponse)
}
