package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reviewdesk/internal/config"
	"reviewdesk/internal/db"
	"reviewdesk/internal/drafts"
	"reviewdesk/internal/migrate"
	"reviewdesk/internal/remote"
	"reviewdesk/internal/requests"
	"reviewdesk/internal/review"
	"reviewdesk/internal/server"
	"reviewdesk/internal/status"
)

var rootCmd = &cobra.Command{
	Use:   "rvd",
	Short: "Reviewdesk CLI",
	Long: `Reviewdesk reviews student projects and reconciles pending deletion requests.
- Projects: student-owned trees of stages and tasks, fetched from the backend per subject.
- Deletion requests: students ask, the reviewer approves or rejects; nothing is deleted locally until the backend confirms.
- Review: 'rvd review open' fetches the full project into an edit buffer; edits stay local (and survive restarts as drafts) until 'rvd review save'.
- Action log: every settled approve/reject/save is appended locally, view with 'rvd log tail'.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REVIEWDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "reviewer identifier (overrides config)")
	rootCmd.PersistentFlags().String("base-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().String("token", "", "backend bearer token (overrides config)")
	rootCmd.PersistentFlags().StringArray("subject", nil, "subject domain (repeatable, overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("subject", rootCmd.PersistentFlags().Lookup("subject"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default reviewdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(baseURL)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://127.0.0.1:8080/v0", "backend base URL")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "projects", Short: "Browse reviewable projects"}
	prj.AddCommand(projectListCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects with deletion-request flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *review.Session) error {
				if err := s.LoadProjects(ctx); err != nil {
					return err
				}
				items := s.Projects()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Owner", "Status", "Pending Deletions"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.OwnerID, status.ForProject(p), p.DeletionRequestCount})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "requests", Short: "Browse pending deletion requests"}
	req.AddCommand(requestListCmd())
	return req
}

func requestListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending deletion requests across subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, s *review.Session) error {
				if err := s.LoadProjects(ctx); err != nil {
					return err
				}
				items := s.Requests()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Request", "Kind", "Project", "Stage", "Task", "Requester", "Reason"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.EntityType, r.ProjectID, r.StageID, r.TaskID, r.Requester, r.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{Use: "review", Short: "Review a single project"}
	rev.AddCommand(reviewOpenCmd())
	rev.AddCommand(reviewShowCmd())
	rev.AddCommand(reviewCloseCmd())
	rev.AddCommand(reviewSetCmd())
	rev.AddCommand(reviewSaveCmd())
	rev.AddCommand(reviewApproveCmd())
	rev.AddCommand(reviewReviseCmd())
	rev.AddCommand(reviewApproveDeletionCmd())
	rev.AddCommand(reviewRejectDeletionCmd())
	return rev
}

// withOpenReview loads the project list, opens one project, and hands the
// session to fn. The CLI is one-shot, so every review subcommand rebuilds the
// session; dirty drafts carry state across invocations.
func withOpenReview(ctx context.Context, projectID string, fn func(context.Context, *review.Session) error) error {
	return withSession(ctx, func(ctx context.Context, s *review.Session) error {
		if err := s.LoadProjects(ctx); err != nil {
			return err
		}
		if err := s.Open(ctx, projectID); err != nil {
			return err
		}
		return fn(ctx, s)
	})
}

func reviewOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <project-id>",
		Short: "Fetch the full project and report pending requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				detail, ok := s.Detail()
				if !ok {
					return review.ErrNoSession
				}
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				fmt.Printf("%s (%s) owner=%s status=%s\n", detail.Title, detail.ID, detail.OwnerID, status.ForProject(detail))
				_, dirty, _ := s.BufferSnapshot()
				if dirty {
					fmt.Println("resumed a draft with unsaved changes")
				}
				if len(detail.DeletionRequestDetails) == 0 {
					fmt.Println("no pending deletion requests")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Request", "Kind", "Entity", "Requester", "Reason"})
				for _, d := range detail.DeletionRequestDetails {
					tw.AppendRow(table.Row{d.RequestID, d.EntityType, d.EntityTitle, d.Requester, d.Reason})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func reviewCloseCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "close <project-id>",
		Short: "Close the review, dropping its draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				if err := s.Close(ctx, force); err != nil {
					return err
				}
				fmt.Println("review closed")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "discard unsaved changes")
	return cmd
}

func reviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show the project under review (buffer state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				p, dirty, ok := s.BufferSnapshot()
				if !ok {
					return review.ErrNoSession
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "dirty": dirty})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Title", "Task", "Task Title", "Status", "Deletion"})
				for _, st := range p.Stages {
					flag := ""
					if st.PendingDeletion() {
						flag = "pending"
					}
					tw.AppendRow(table.Row{st.ID, st.Title, "", "", status.ForStage(st), flag})
					for _, t := range st.Tasks {
						flag = ""
						if t.PendingDeletion() {
							flag = "pending"
						}
						tw.AppendRow(table.Row{st.ID, "", t.ID, t.Title, status.ForTask(t), flag})
					}
				}
				tw.Render()
				if dirty {
					fmt.Println("buffer has unsaved changes")
				}
				return nil
			})
		},
	}
}

func reviewSetCmd() *cobra.Command {
	var rawJSON bool
	cmd := &cobra.Command{
		Use:   "set <project-id> <path> <value>",
		Short: "Edit one field in the buffer (persists a draft)",
		Long: `Edits a path-addressed field, e.g.
  rvd review set p1 title "New title"
  rvd review set p1 'stages[0].tasks[2].status' completed
  rvd review set p1 --raw 'stages[0].order' 3
Without --raw the value is a string; with --raw it is parsed as JSON.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = args[2]
			if rawJSON {
				if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
					return fmt.Errorf("invalid --raw value: %w", err)
				}
			}
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				if err := s.Edit(ctx, args[1], value); err != nil {
					return err
				}
				fmt.Println("updated", args[1])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&rawJSON, "raw", false, "parse value as JSON")
	return cmd
}

func reviewSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <project-id>",
		Short: "Push buffered edits to the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				if err := s.Save(ctx); err != nil {
					return reportOutcome(s, err)
				}
				return reportOutcome(s, nil)
			})
		},
	}
}

func reviewApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <project-id>",
		Short: "Approve the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				return reportOutcome(s, s.ApproveProject(ctx, args[0]))
			})
		},
	}
}

func reviewReviseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "request-revision <project-id>",
		Short: "Send the project back for revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				return reportOutcome(s, s.RequestRevision(ctx, args[0]))
			})
		},
	}
}

func reviewApproveDeletionCmd() *cobra.Command {
	var stageID, taskID string
	cmd := &cobra.Command{
		Use:   "approve-deletion <project-id>",
		Short: "Approve a pending deletion request",
		Long: `Approves the deletion request attached to an entity of the open project.
With no flags the project-level request is approved; --stage targets a stage,
--stage plus --task targets a task.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				var err error
				switch {
				case taskID != "":
					err = s.ApproveTaskDeletion(ctx, stageID, taskID)
				case stageID != "":
					err = s.ApproveStageDeletion(ctx, stageID)
				default:
					err = s.ApproveProjectDeletion(ctx)
				}
				return reportOutcome(s, err)
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "stage id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id (requires --stage)")
	return cmd
}

func reviewRejectDeletionCmd() *cobra.Command {
	var stageID, taskID string
	cmd := &cobra.Command{
		Use:   "reject-deletion <project-id>",
		Short: "Reject a pending deletion request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOpenReview(cmd.Context(), args[0], func(ctx context.Context, s *review.Session) error {
				var err error
				switch {
				case taskID != "":
					err = s.RejectTaskDeletion(ctx, stageID, taskID)
				case stageID != "":
					err = s.RejectStageDeletion(ctx, stageID)
				default:
					err = s.RejectProjectDeletion(ctx)
				}
				return reportOutcome(s, err)
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "stage id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id (requires --stage)")
	return cmd
}

func draftCmd() *cobra.Command {
	d := &cobra.Command{Use: "drafts", Short: "Manage local edit drafts"}
	d.AddCommand(draftListCmd())
	d.AddCommand(draftDeleteCmd())
	return d
}

func draftListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted drafts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrafts(cmd.Context(), func(ctx context.Context, r drafts.Repo) error {
				items, err := r.ListDrafts(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func draftDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a persisted draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrafts(cmd.Context(), func(ctx context.Context, r drafts.Repo) error {
				if err := r.DeleteDraft(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted draft for", args[0])
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the local action log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail settled review actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDrafts(cmd.Context(), func(ctx context.Context, r drafts.Repo) error {
				actions, err := r.ListActions(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(actions)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of actions")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP review API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, conn, err := buildSession(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := s.LoadProjects(cmd.Context()); err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Listen
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			secret := os.Getenv("REVIEWDESK_JWT_SECRET")
			if secret == "" {
				secret = cfg.Server.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("REVIEWDESK_JWT_SECRET (or server.jwt_secret) is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Session:  s,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: cfg.Server.AllowLegacyActorHeader,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Reviewdesk API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		if viper.GetString("base-url") == "" {
			return nil, fmt.Errorf("config %s not found; create one with rvd config init or pass --base-url", config.Path(workspace))
		}
		cfg = config.Default(viper.GetString("base-url"))
	}
	if v := viper.GetString("base-url"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := viper.GetString("token"); v != "" {
		cfg.Backend.Token = v
	}
	if v := viper.GetString("actor-id"); v != "" {
		cfg.Reviewer.ActorID = v
	}
	if v := viper.GetStringSlice("subject"); len(v) > 0 {
		cfg.Subjects = v
	}
	return cfg, nil
}

func buildSession(cfg *config.Config) (*review.Session, *sql.DB, error) {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(workspace)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	client := remote.New(cfg.Backend.BaseURL)
	client.BearerToken = cfg.Backend.Token
	client.APIKey = cfg.Backend.APIKey
	client.Timeout = cfg.BackendTimeout()
	logger := log.New(os.Stderr, "rvd ", log.LstdFlags)
	repo := drafts.Repo{DB: conn}
	s := review.NewSession(review.Config{
		Backend:        client,
		Store:          requests.NewStore(client, logger),
		Drafts:         repo,
		Actions:        repo,
		Logger:         logger,
		ReviewerID:     cfg.Reviewer.ActorID,
		SubjectDomains: cfg.Subjects,
		MessageTTL:     cfg.MessageTTL(),
	})
	return s, conn, nil
}

func withSession(ctx context.Context, fn func(context.Context, *review.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, conn, err := buildSession(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, s)
}

func withDrafts(ctx context.Context, fn func(context.Context, drafts.Repo) error) error {
	conn, err := db.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, drafts.Repo{DB: conn})
}

// reportOutcome prints the session's transient messages after a workflow
// call. Backend rejections surface as session error messages rather than
// command failures, matching the HTTP API's behavior.
func reportOutcome(s *review.Session, err error) error {
	success, errMsg := s.Messages()
	switch {
	case success != "":
		fmt.Println(success)
	case errMsg != "":
		fmt.Println("error:", errMsg)
	}
	if err != nil {
		var actionErr *remote.ActionError
		if errors.As(err, &actionErr) && errMsg != "" {
			return nil
		}
		return err
	}
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
