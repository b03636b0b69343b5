package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gumshoe/internal/collaborator"
	"gumshoe/internal/config"
	"gumshoe/internal/investigation"
	"gumshoe/internal/retrieval"
	"gumshoe/internal/session"
	"gumshoe/internal/store"
	"gumshoe/internal/types"
)

var (
	chatUser   string
	chatClient string
	chatMode   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive troubleshooting session",
	Long: `Opens (or resumes) the case bound to your session and processes turns
interactively. Type your observations; attach evidence by answering the open
requests the assistant lists.

Commands inside the chat:
  /status     show case phase, status, and open requests
  /hypotheses show the ranked hypothesis ledger
  /quit       leave (the case keeps running until its TTL)`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", defaultUser(), "User identity")
	chatCmd.Flags().StringVar(&chatClient, "client", defaultClient(), "Client identity")
	chatCmd.Flags().StringVar(&chatMode, "mode", "consultant", "Engagement mode: consultant or lead_investigator")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func defaultClient() string {
	host, err := os.Hostname()
	if err != nil {
		return "cli"
	}
	return "cli-" + host
}

// buildService wires the full turn pipeline from config.
func buildService() (*session.Service, *store.LocalStore, func(), error) {
	s, err := store.NewLocalStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	pb, err := config.LoadPlaybook(cfg.Investigation.PlaybookPath)
	if err != nil {
		logger.Warn("playbook load failed, using defaults", zap.Error(err))
		pb = config.DefaultPlaybook()
	}
	holder := config.NewPlaybookHolder(pb)

	watcher, err := config.NewPlaybookWatcher(cfg.Investigation.PlaybookPath, holder)
	if err == nil {
		_ = watcher.Start(context.Background())
	} else {
		logger.Debug("playbook watcher unavailable", zap.Error(err))
		watcher = nil
	}

	caseTTL := config.ParseDurationOr(cfg.Store.CaseTTL, 168*time.Hour)
	ctl := investigation.NewController(s, cfg.Investigation, holder, caseTTL)
	clients := collaborator.NewFromConfig(cfg.LLM)

	engine, err := retrieval.NewEngine(cfg.Retrieval)
	if err != nil {
		logger.Warn("retrieval engine unavailable", zap.Error(err))
		engine = retrieval.NewHashEngine(cfg.Retrieval.Dimensions)
	}
	searcher := retrieval.NewCaseSearcher(engine, s, cfg.Retrieval.TopK)

	svc := session.NewService(s, ctl, clients, searcher, cfg)
	svc.SetDefaultMode(types.ParseEngagementMode(chatMode))

	// Background cleanup runs for the lifetime of the chat process.
	var archive *store.ArchiveStore
	if cfg.Store.ArchivePath != "" {
		archive, err = store.NewArchiveStore(cfg.Store.ArchivePath)
		if err != nil {
			logger.Warn("archive store unavailable, expired cases will not be archived", zap.Error(err))
		}
	}
	sweeper := store.NewSweeper(s, archive, config.ParseDurationOr(cfg.Store.CleanupInterval, 10*time.Minute))
	sweeper.Start(context.Background())

	cleanup := func() {
		sweeper.Stop()
		if watcher != nil {
			watcher.Stop()
		}
		clients.Scheduler.Stop()
		if archive != nil {
			archive.Close()
		}
		s.Close()
	}
	return svc, s, cleanup, nil
}

func runChat(cmd *cobra.Command, args []string) error {
	svc, s, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Printf("gumshoe %s - describe what's broken and we'll work the case.\n", cfg.Version)
	fmt.Println("Type /quit to leave, /status for the case state.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			fmt.Println("The case stays open; come back any time.")
			return nil
		case "/status":
			printStatus(svc, s)
			continue
		case "/hypotheses":
			printHypotheses(svc, s)
			continue
		}

		res, err := svc.SubmitTurn(ctx, session.TurnRequest{
			UserID:   chatUser,
			ClientID: chatClient,
			Content:  line,
		})
		if err != nil {
			if types.IsRetryable(err) {
				fmt.Println("That didn't go through (temporary problem); please try again.")
				continue
			}
			return err
		}

		fmt.Println()
		fmt.Println(res.Content)
		if res.CaseStatus == types.StatusStalled {
			fmt.Println("\n[case stalled - see the suggestion above]")
		}
		fmt.Println()
	}
	return scanner.Err()
}

func printStatus(svc *session.Service, s *store.LocalStore) {
	c, err := svc.ActiveCase(chatUser, chatClient)
	if err != nil {
		fmt.Println("No active case yet; describe your problem to open one.")
		return
	}
	fmt.Printf("case %s: status=%s phase=%s turn=%d\n", c.ID, c.Status, c.Phase, c.Turn)
	if c.ProblemStatement != "" {
		fmt.Printf("problem: %s\n", c.ProblemStatement)
	}
	requests, err := s.EvidenceRequests(c.ID)
	if err != nil {
		return
	}
	for _, r := range requests {
		if r.Status.Open() {
			fmt.Printf("  open [%s] %s (%.0f%% complete)\n", r.Category, r.Label, r.Completeness*100)
		}
	}
}

func printHypotheses(svc *session.Service, s *store.LocalStore) {
	c, err := svc.ActiveCase(chatUser, chatClient)
	if err != nil {
		fmt.Println("No active case yet.")
		return
	}
	hypotheses, err := s.Hypotheses(c.ID)
	if err != nil || len(hypotheses) == 0 {
		fmt.Println("No hypotheses on the ledger yet.")
		return
	}
	for i, h := range hypotheses {
		fmt.Printf("%d. [%.0f%% %s] %s\n", i+1, h.Likelihood*100, h.Status, h.Statement)
	}
}
