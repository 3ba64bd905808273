// Command focuspipe-console runs the focus ritual in a terminal against an
// in-memory store. Numbered replies press the latest keyboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BTreeMap/FocusPipe/internal/admission"
	"github.com/BTreeMap/FocusPipe/internal/console"
	"github.com/BTreeMap/FocusPipe/internal/flow"
	"github.com/BTreeMap/FocusPipe/internal/messaging"
	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
)

func main() {
	participant := flag.String("participant", console.DefaultParticipant, "participant id of the terminal user")
	fast := flag.Bool("fast", false, "use second-scale follow-up delays")
	tier := flag.String("tier", "", "grant this tier to the participant for a day (basic or premium)")
	admin := flag.Bool("admin", false, "treat the participant as an admin")
	logPath := flag.String("log", filepath.Join(os.TempDir(), "focuspipe-console.log"), "log file")
	flag.Parse()

	if err := run(*participant, *fast, models.TierCode(*tier), *admin, *logPath); err != nil {
		fmt.Fprintln(os.Stderr, "focuspipe-console:", err)
		os.Exit(1)
	}
}

func run(participant string, fast bool, tier models.TierCode, admin bool, logPath string) error {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewInMemoryStore()
	svc := console.NewService(participant)
	defer svc.Stop()

	var gateOpts []admission.Option
	if admin {
		gateOpts = append(gateOpts, admission.WithAdmins(svc.Participant()))
	}
	if tier != "" {
		if _, err := admission.NewGranter(st, st, admission.DefaultPlans()).GrantTier(svc.Participant(), tier, 1); err != nil {
			return err
		}
	}

	keyboards := messaging.NewKeyboardRegistry(0)
	followUps := flow.NewFollowUpScheduler(flow.WithCallbackRepo(st), flow.WithFireContext(ctx))
	defer followUps.Stop()

	var engineOpts []flow.EngineOption
	if fast {
		engineOpts = append(engineOpts,
			flow.WithCheckDelay(20*time.Second),
			flow.WithSupportDelay(40*time.Second),
			flow.WithShortDelay(15*time.Second),
			flow.WithLongDelay(30*time.Second),
		)
	}
	engine := flow.NewEngine(flow.NewSessionStore(st), followUps, admission.NewGate(st, st, gateOpts...),
		messaging.NewKeyboardSender(svc, keyboards), st, engineOpts...)
	messaging.NewDispatcher(svc, engine, keyboards, messaging.WithDeduper(st)).Start(ctx)

	slog.Info("focuspipe-console started", "participant", svc.Participant(), "fast", fast, "tier", tier, "admin", admin)
	_, err = tea.NewProgram(console.NewModel(svc), tea.WithAltScreen()).Run()
	return err
}
