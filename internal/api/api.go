// Package api provides the HTTP server and the main service wiring for FocusPipe.
//
// It exposes a health check, the tier grant hook, read-only inspection
// endpoints and, with the Twilio transport, the inbound webhook. Run assembles
// the store, transport, flow engine, follow-up recovery and maintenance jobs.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/flow"
	"github.com/BTreeMap/FocusPipe/internal/genai"
	"github.com/BTreeMap/FocusPipe/internal/lockfile"
	"github.com/BTreeMap/FocusPipe/internal/messaging"
	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/recovery"
	"github.com/BTreeMap/FocusPipe/internal/scheduler"
	"github.com/BTreeMap/FocusPipe/internal/store"
	"github.com/BTreeMap/FocusPipe/internal/telemetry"
	"github.com/BTreeMap/FocusPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/FocusPipe/internal/whatsapp"
)

// Granter applies tier grants.
type Granter interface {
	GrantTier(participantID string, tier models.TierCode, days int) (models.Subscription, error)
}

// Inspector reads participant state.
type Inspector interface {
	Session(participantID string) (*models.Session, error)
	Stats(participantID string) (flow.Stats, error)
}

// TimerLister lists armed follow-ups.
type TimerLister interface {
	ListActive() []models.TimerInfo
	Armed(participantID string) []models.Callback
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	msgService messaging.Service
	granter    Granter
	inspector  Inspector
	timers     TimerLister
	jwtSecret  string
	transport  string
	started    time.Time
	webhook    http.HandlerFunc
}

// NewServer creates a Server. A *messaging.TwilioService also gets its
// webhook mounted at /webhooks/twilio.
func NewServer(msgService messaging.Service, granter Granter, inspector Inspector, timers TimerLister, jwtSecret string) *Server {
	s := &Server{
		msgService: msgService,
		granter:    granter,
		inspector:  inspector,
		timers:     timers,
		jwtSecret:  jwtSecret,
		transport:  TransportWhatsApp,
		started:    time.Now(),
	}
	if tw, ok := msgService.(*messaging.TwilioService); ok {
		s.transport = TransportTwilio
		s.webhook = tw.TwilioWebhookHandler
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/subscriptions", s.requireAuth(s.grantHandler))
	mux.HandleFunc("/participants/{id}/session", s.requireAuth(s.sessionHandler))
	mux.HandleFunc("/participants/{id}/stats", s.requireAuth(s.statsHandler))
	mux.HandleFunc("/timers", s.requireAuth(s.timersHandler))
	if s.webhook != nil {
		mux.HandleFunc("/webhooks/twilio", func(w http.ResponseWriter, r *http.Request) {
			if requireMethod(w, r, http.MethodPost) {
				s.webhook(w, r)
			}
		})
	}
	return mux
}

func (s *Server) canonicalize(participantID string) (string, error) {
	if participantID == "" {
		return "", fmt.Errorf("participant id cannot be empty")
	}
	if s.msgService == nil {
		return participantID, nil
	}
	return s.msgService.ValidateAndCanonicalizeRecipient(participantID)
}

// Run starts FocusPipe and blocks until SIGINT/SIGTERM or a fatal server error.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	o := defaultOpts()
	for _, opt := range apiOpts {
		opt(&o)
	}
	slog.Debug("api.Run: options applied", "addr", o.Addr, "transport", o.Transport, "state_dir", o.StateDir,
		"jwt_set", o.JWTSecret != "", "tiers_file", o.TiersFile, "timezone", o.Timezone, "admins", len(o.AdminIDs))

	if o.StateDir != "" {
		lock, err := lockfile.AcquireLock(o.StateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "focuspipe", o.OTELEndpoint)
	if err != nil {
		slog.Warn("api.Run: tracing disabled", "error", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("api.Run: tracing shutdown failed", "error", err)
		}
	}()

	st, err := store.Open(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	plans := admission.DefaultPlans()
	if o.TiersFile != "" {
		if plans, err = admission.LoadPlans(o.TiersFile); err != nil {
			return err
		}
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", o.Timezone, err)
	}
	gate := admission.NewGate(st, st,
		admission.WithPlans(plans),
		admission.WithAdmins(o.AdminIDs...),
		admission.WithLocation(loc))

	svc, err := newTransport(o, waOpts)
	if err != nil {
		return err
	}
	defer svc.Stop()

	keyboards := messaging.NewKeyboardRegistry(0)
	followUps := flow.NewFollowUpScheduler(flow.WithCallbackRepo(st), flow.WithFireContext(ctx))
	defer followUps.Stop()
	sessions := flow.NewSessionStore(st)
	engine := flow.NewEngine(sessions, followUps, gate, messaging.NewKeyboardSender(svc, keyboards), st,
		engineOptions(o, genaiOpts)...)

	rm := recovery.NewRecoveryManager(st)
	rm.RegisterRecoverable(recovery.CallbackRecovery{})
	rm.RegisterCallbackRecovery(recovery.CallbackRecoveryHandler(followUps))
	if err := rm.RecoverAll(ctx); err != nil {
		slog.Error("api.Run: recovery incomplete", "error", err)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s transport: %w", o.Transport, err)
	}
	messaging.NewDispatcher(svc, engine, keyboards, messaging.WithDeduper(st)).Start(ctx)

	cron := scheduler.NewScheduler(scheduler.WithLocation(loc))
	defer cron.Stop()
	if err := scheduler.NewMaintenance(st, sessions).Register(cron, ""); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	server := NewServer(svc, admission.NewGranter(st, st, plans), engine, followUps, o.JWTSecret)
	httpServer := &http.Server{
		Addr:              o.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("FocusPipe API listening", "addr", o.Addr, "transport", o.Transport)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("FocusPipe shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), o.ShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api.Run: HTTP shutdown incomplete", "error", err)
	}
	return nil
}

// newTransport builds the messaging service named by o.Transport.
func newTransport(o Opts, waOpts []whatsapp.Option) (messaging.Service, error) {
	switch o.Transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(o.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(o.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(o.TwilioFrom),
		)
		if err != nil {
			return nil, fmt.Errorf("twilio transport misconfigured: %w", err)
		}
		var twOpts []messaging.TwilioOption
		if o.TwilioWebhookURL != "" {
			twOpts = append(twOpts, messaging.WithSignatureValidation(
				twiliowhatsapp.NewSignatureValidator(o.TwilioAuthToken), o.TwilioWebhookURL))
		}
		return messaging.NewTwilioService(client, twOpts...), nil
	case TransportWhatsApp, "":
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	}
	return nil, fmt.Errorf("unknown transport %q", o.Transport)
}

// engineOptions picks the motivator and follow-up delays.
func engineOptions(o Opts, genaiOpts []genai.Option) []flow.EngineOption {
	var opts []flow.EngineOption
	if client, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Info("GenAI motivation disabled, using static texts", "reason", err)
	} else {
		opts = append(opts, flow.WithMotivator(genai.NewMotivator(client, nil)))
	}
	if o.FastDelays {
		slog.Warn("Fast follow-up delays enabled")
		opts = append(opts,
			flow.WithCheckDelay(20*time.Second),
			flow.WithSupportDelay(40*time.Second),
			flow.WithShortDelay(15*time.Second),
			flow.WithLongDelay(30*time.Second),
		)
	}
	return opts
}
