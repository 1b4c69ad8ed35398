package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"leadflow/internal/backfill"
	"leadflow/internal/config"
	"leadflow/internal/database"
	"leadflow/internal/esp"
	"leadflow/internal/intent"
	"leadflow/internal/models"
	"leadflow/internal/notify"
	"leadflow/internal/vault"
)

func main() {
	// Parse command line flags
	provider := flag.String("provider", "", "ESP provider (smartlead, email_bison, instantly)")
	credential := flag.String("credential", "", "ESP API key (falls back to ESP_CREDENTIAL env)")
	brandID := flag.String("brand", "", "Brand the account belongs to")
	displayName := flag.String("name", "CLI Import", "Account display name")
	cutoffDays := flag.Int("cutoff-days", -1, "Only import campaigns created in the last N days (-1 = use config)")
	flag.Parse()

	if *credential == "" {
		*credential = os.Getenv("ESP_CREDENTIAL")
	}

	if *provider == "" || *brandID == "" || *credential == "" {
		fmt.Println("Usage:")
		fmt.Println("  backfill -provider smartlead -brand acme -credential sk-...")
		fmt.Println("  backfill -provider instantly -brand acme -cutoff-days 90")
		fmt.Println("  The credential may also be passed via the ESP_CREDENTIAL environment variable.")
		os.Exit(1)
	}

	if !models.ValidProvider(models.Provider(*provider)) {
		log.Fatalf("Unknown provider %q", *provider)
	}

	// Load configuration
	cfg := config.Load()
	logger := cfg.SetupLogger()
	if *cutoffDays >= 0 {
		cfg.BackfillCutoffDays = *cutoffDays
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }()

	store, err := database.NewLeadService(db)
	if err != nil {
		log.Fatalf("Failed to initialize lead service: %v", err)
	}

	// Register the account in a fresh vault for this one-shot run
	accountVault := vault.New(cfg.EncryptionKey, store, logger)
	account, err := accountVault.AddAccount(models.Account{
		BrandID:     *brandID,
		DisplayName: *displayName,
		Provider:    models.Provider(*provider),
	}, *credential)
	if err != nil {
		log.Fatalf("Failed to register account: %v", err)
	}

	clients := func(p models.Provider) (esp.Client, error) {
		return esp.New(p, time.Duration(cfg.ESPTimeout)*time.Second, logger)
	}

	completer := intent.NewOpenAICompleter(cfg.OpenAIKey, cfg.OpenAIModel, time.Duration(cfg.OpenAITimeout)*time.Second)
	classifier := intent.NewClassifier(completer, cfg.Categories(), logger)

	var notifier backfill.Notifier
	if cfg.SendGridAPIKey != "" && cfg.OperatorEmail != "" {
		notifier = notify.NewService(cfg.SendGridAPIKey, cfg.OperatorEmail, cfg.SenderEmail, logger)
	}

	orchestrator := backfill.NewOrchestrator(accountVault, store, classifier, clients, notifier, backfill.Config{
		CutoffDays:       cfg.BackfillCutoffDays,
		FetchInterval:    time.Duration(cfg.FetchIntervalMS) * time.Millisecond,
		ClassifyInterval: time.Duration(cfg.ClassifyIntervalMS) * time.Millisecond,
	}, logger)

	manager := backfill.NewManager(orchestrator)
	run, err := manager.Start(account.AccountID, 0)
	if err != nil {
		log.Fatalf("Failed to start backfill: %v", err)
	}

	fmt.Printf("Backfill started (run %s)\n", run.ID)

	// Print progress while the run executes
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				state, progress, _ := run.Snapshot()
				fmt.Printf("  [%s] %d/%d %s\n", state, progress.Current, progress.Total, progress.Status)
			}
		}
	}()

	result := run.Wait()
	close(done)

	fmt.Printf("\n%s\n", result.Status)
	fmt.Printf("  - Imported: %d leads\n", result.Imported)
	fmt.Printf("  - Analyzed: %d leads\n", result.Analyzed)
	fmt.Printf("  - Skipped:  %d duplicates\n", result.Skipped)
	fmt.Printf("  - Failures: %d\n", result.Failed)

	if result.State == models.RunFailed {
		fmt.Printf("\nRun failed: %s\n", result.Error)
		os.Exit(1)
	}
}
