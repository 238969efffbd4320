package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"opsboard/internal/api"
	"opsboard/internal/board"
	"opsboard/internal/config"
	"opsboard/internal/directory"
	"opsboard/internal/domain"
	"opsboard/internal/engine"
	"opsboard/internal/session"
)

const defaultServerURL = "http://127.0.0.1:8080/api/v1"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var rootCmd = &cobra.Command{
	Use:   "ob",
	Short: "Opsboard CLI",
	Long: `Opsboard tracks incidents on a three-column board (in process, closed,
archived) backed by a remote incident service. Log in first; the session
token is kept in the workspace until logout or until the server rejects it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := session.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("OPSBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "", "server base URL (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(incidentCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(alertsCmd())
}

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the incident service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return fmt.Errorf("--username required")
			}
			if password == "" {
				pw, err := promptPassword()
				if err != nil {
					return err
				}
				password = pw
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *api.Client) error {
				if err := c.Login(ctx, username, password); err != nil {
					return err
				}
				fmt.Println("logged in")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *api.Client) error {
				if err := c.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("logged out")
				return nil
			})
		},
	}
}

func boardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the incident board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				b := r.Board()
				if viper.GetBool("json") {
					return printJSON(b)
				}
				renderColumn("In Process", b.InProcess)
				renderColumn("Closed", b.Closed)
				renderColumn("Archived", b.Archived)
				renderAdmins(r.Administrators())
				return nil
			})
		},
	}
}

func incidentCmd() *cobra.Command {
	inc := &cobra.Command{
		Use:   "incident",
		Short: "Manage incidents",
		Long: `Incidents flow in_process <-> closed -> archived. Closing requires a
solution and stamps the close date; reopening clears both. Archived is final.`,
	}
	inc.AddCommand(incidentCreateCmd())
	inc.AddCommand(incidentUpdateCmd())
	inc.AddCommand(incidentArchiveCmd())
	inc.AddCommand(incidentListCmd())
	return inc
}

func incidentCreateCmd() *cobra.Command {
	var draft engine.IncidentDraft
	var importance, status string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an incident",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Importance = domain.Importance(importance)
			draft.Status = domain.Status(status)
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				created, err := r.CreateIncident(ctx, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&draft.Description, "description", "", "incident description")
	cmd.Flags().StringVar(&draft.UsedSources, "used-sources", "", "research sources")
	cmd.Flags().StringVar(&importance, "importance", "medium", "importance (high, medium, low)")
	cmd.Flags().StringVar(&status, "status", "in_process", "status (in_process, closed)")
	cmd.Flags().StringVar(&draft.WorkerID, "worker-id", "", "assigned administrator id (empty for unassigned)")
	cmd.Flags().StringVar(&draft.Solution, "solution", "", "solution (required when closing)")
	cmd.Flags().StringVar(&draft.Note, "note", "", "free-form note")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func incidentUpdateCmd() *cobra.Command {
	var description, usedSources, importance, status, workerID, solution, note string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edits engine.IncidentEdits
			if cmd.Flags().Changed("description") {
				edits.Description = &description
			}
			if cmd.Flags().Changed("used-sources") {
				edits.UsedSources = &usedSources
			}
			if cmd.Flags().Changed("importance") {
				v := domain.Importance(importance)
				edits.Importance = &v
			}
			if cmd.Flags().Changed("status") {
				v := domain.Status(status)
				edits.Status = &v
			}
			if cmd.Flags().Changed("worker-id") {
				edits.WorkerID = &workerID
			}
			if cmd.Flags().Changed("solution") {
				edits.Solution = &solution
			}
			if cmd.Flags().Changed("note") {
				edits.Note = &note
			}
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				updated, err := r.UpdateIncident(ctx, args[0], edits)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "incident description")
	cmd.Flags().StringVar(&usedSources, "used-sources", "", "research sources")
	cmd.Flags().StringVar(&importance, "importance", "", "importance (high, medium, low)")
	cmd.Flags().StringVar(&status, "status", "", "status (in_process, closed)")
	cmd.Flags().StringVar(&workerID, "worker-id", "", "assigned administrator id (empty unassigns)")
	cmd.Flags().StringVar(&solution, "solution", "", "solution (required when closing)")
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	return cmd
}

func incidentArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				if err := r.ArchiveIncident(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("incident %s archived\n", args[0])
				return nil
			})
		},
	}
}

func incidentListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List incidents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				incidents := r.Incidents()
				admins := r.Administrators()
				if status != "" {
					filtered := incidents[:0:0]
					for _, inc := range incidents {
						if inc.Status == domain.Status(status) {
							filtered = append(filtered, inc)
						}
					}
					incidents = filtered
				}
				if viper.GetBool("json") {
					return printJSON(incidents)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Description", "Importance", "Status", "Worker", "Close Date"})
				for _, inc := range incidents {
					tw.AppendRow(table.Row{
						inc.ID, inc.Description, inc.Importance, inc.Status,
						directory.Resolve(admins, deref(inc.WorkerID)).Label(),
						formatDate(inc.CloseDate),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func adminCmd() *cobra.Command {
	adm := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrators",
		Long: `Administrators are the operators incidents can be assigned to. Inactive
accounts stay visible on historical incidents but are flagged as inactive.`,
	}
	adm.AddCommand(adminCreateCmd())
	adm.AddCommand(adminUpdateCmd())
	adm.AddCommand(adminListCmd())
	return adm
}

func adminCreateCmd() *cobra.Command {
	var draft directory.AdministratorDraft
	var role string
	var inactive bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Role = domain.Role(role)
			if cmd.Flags().Changed("inactive") {
				active := !inactive
				draft.IsActive = &active
			}
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				created, err := r.CreateAdministrator(ctx, draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&draft.Username, "username", "", "login name (immutable after creation)")
	cmd.Flags().StringVar(&draft.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&draft.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&role, "role", "USER", "role (ADMIN, USER)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the account inactive")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	return cmd
}

func adminUpdateCmd() *cobra.Command {
	var firstName, lastName, role string
	var active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an administrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edits directory.AdministratorEdits
			if cmd.Flags().Changed("first-name") {
				edits.FirstName = &firstName
			}
			if cmd.Flags().Changed("last-name") {
				edits.LastName = &lastName
			}
			if cmd.Flags().Changed("role") {
				v := domain.Role(role)
				edits.Role = &v
			}
			if cmd.Flags().Changed("active") {
				edits.IsActive = &active
			}
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				updated, err := r.UpdateAdministrator(ctx, args[0], edits)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&role, "role", "", "role (ADMIN, USER)")
	cmd.Flags().BoolVar(&active, "active", true, "active flag")
	return cmd
}

func adminListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List administrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBoard(cmd.Context(), func(ctx context.Context, r *board.Reconciler) error {
				admins := r.Administrators()
				if viper.GetBool("json") {
					return printJSON(admins)
				}
				renderAdmins(admins)
				return nil
			})
		},
	}
}

func alertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Show the monitoring alert log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *api.Client) error {
				if !session.Active(ctx, c.Session) {
					return errLoginRequired
				}
				entries, err := c.AlertLog(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "No", "Description", "Importance", "Responsible", "Status", "Resources"})
				for _, e := range entries {
					tw.AppendRow(table.Row{
						e.Date.Format("2006-01-02 15:04"), e.Number, e.Description,
						e.Importance, e.Responsible, e.Status, strings.Join(e.Resources, ", "),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- helpers ---

var errLoginRequired = errors.New("login required; run 'ob login'")

func withClient(ctx context.Context, fn func(context.Context, *api.Client) error) error {
	workspace := viper.GetString("workspace")
	db, err := session.Open(workspace)
	if err != nil {
		return err
	}
	defer db.Close()
	serverURL, timeout, retries, err := resolveServer(workspace)
	if err != nil {
		return err
	}
	client := api.New(serverURL, session.NewSQLite(db))
	client.Timeout = timeout
	client.FetchRetries = retries
	return fn(ctx, client)
}

func withBoard(ctx context.Context, fn func(context.Context, *board.Reconciler) error) error {
	return withClient(ctx, func(ctx context.Context, c *api.Client) error {
		if !session.Active(ctx, c.Session) {
			return errLoginRequired
		}
		r := board.New(c)
		if err := r.Load(ctx); err != nil {
			return err
		}
		return fn(ctx, r)
	})
}

func resolveServer(workspace string) (string, time.Duration, uint64, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", 0, 0, err
	}
	if cfg == nil {
		cfg = config.Default(defaultServerURL)
	}
	if override := viper.GetString("server"); override != "" {
		cfg.Server.URL = override
	}
	if err := cfg.Validate(); err != nil {
		return "", 0, 0, err
	}
	return cfg.Server.URL, cfg.Server.Timeout, cfg.Server.Retries, nil
}

func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func renderColumn(title string, entries []domain.BoardIncident) {
	fmt.Printf("%s (%d)\n", title, len(entries))
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Description", "Importance", "Worker", "Close Date"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.ID, e.Description, e.Importance, e.Worker.Label(), formatDate(e.CloseDate)})
	}
	tw.Render()
}

func renderAdmins(admins []domain.Administrator) {
	fmt.Printf("Administrators (%d)\n", len(admins))
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Username", "Name", "Role", "Active"})
	for _, a := range admins {
		tw.AppendRow(table.Row{a.ID, a.Username, a.DisplayName(), a.Role, a.IsActive})
	}
	tw.Render()
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

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
