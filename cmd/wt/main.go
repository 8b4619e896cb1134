package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"worktrack/internal/board"
	"worktrack/internal/event"
	"worktrack/internal/mcp"
	"worktrack/internal/patch"
	"worktrack/internal/server"
	"worktrack/internal/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "wt",
	Short: "worktrack CLI",
	Long: `worktrack keeps work items in plain files with a full event history.
- Workspace: a directory with a .worktrack/ marker; items live under work/items/.
- Item: a YAML snapshot (meta.yml) plus an append-only event log (events.ndjson).
- UID: "fs:" plus a slug derived from the title, e.g. fs:fix-login-timeout.
- Workflow: TODO -> IN_PROGRESS -> IN_REVIEW -> DONE ('wt advance' / 'wt revert').
- Every change is recorded as an event before the snapshot is rewritten,
  so 'wt events' always shows how an item got to its current state.`,
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
	viper.SetEnvPrefix("WORKTRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "actor recorded on events")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(newCmd("new"))
	rootCmd.AddCommand(newCmd("add"))
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(setCmd())
	rootCmd.AddCommand(patchCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(shiftCmd("advance", "next", "Move an item to the next workflow state"))
	rootCmd.AddCommand(shiftCmd("revert", "prev", "Move an item back to the previous workflow state"))
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(boardCmd())
}

func openWorkspace() (*workspace.Workspace, error) {
	return workspace.Open(viper.GetString("workspace"))
}

func actor() string {
	return viper.GetString("actor")
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := viper.GetString("workspace")
			ws, err := workspace.Init(root, name)
			if err != nil {
				return err
			}
			fmt.Printf("initialized workspace in %s\n", ws.Root())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace name")
	return cmd
}

func newCmd(use string) *cobra.Command {
	var (
		interactive bool
		description string
		state       string
		assignee    string
		labels      []string
		fields      []string
	)
	cmd := &cobra.Command{
		Use:   use + " [title]",
		Short: "Create a work item",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			title := strings.TrimSpace(strings.Join(args, " "))
			opts := workspace.CreateOptions{
				Description: description,
				State:       state,
				Assignee:    assignee,
				Labels:      labels,
				Actor:       actor(),
			}
			if interactive {
				title, opts, err = promptItem(cmd.InOrStdin(), title, opts)
				if err != nil {
					return err
				}
			}
			if title == "" {
				return fmt.Errorf("title is required")
			}
			if len(fields) > 0 {
				opts.Fields = map[string]any{}
				for _, raw := range fields {
					op, err := patch.ParseSetOperation(raw)
					if err != nil {
						return err
					}
					opts.Fields[op.Path] = op.Value
				}
			}
			it, err := ws.CreateItem(title, opts)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(it)
			}
			fmt.Printf("created %s (%s)\n", it.UID, it.State)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "prompt for item details")
	cmd.Flags().StringVar(&description, "description", "", "item description")
	cmd.Flags().StringVar(&state, "state", "", "initial state")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "label (repeatable)")
	cmd.Flags().StringArrayVar(&fields, "field", nil, "custom field key=value (repeatable)")
	return cmd
}

func promptItem(in io.Reader, title string, opts workspace.CreateOptions) (string, workspace.CreateOptions, error) {
	reader := bufio.NewReader(in)
	prompt := func(label, current string) (string, error) {
		if current != "" {
			fmt.Printf("%s [%s]: ", label, current)
		} else {
			fmt.Printf("%s: ", label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return current, nil
		}
		return line, nil
	}
	var err error
	if title, err = prompt("title", title); err != nil {
		return "", opts, err
	}
	if opts.Description, err = prompt("description", opts.Description); err != nil {
		return "", opts, err
	}
	if opts.State, err = prompt("state", opts.State); err != nil {
		return "", opts, err
	}
	if opts.Assignee, err = prompt("assignee", opts.Assignee); err != nil {
		return "", opts, err
	}
	labels, err := prompt("labels (comma separated)", strings.Join(opts.Labels, ","))
	if err != nil {
		return "", opts, err
	}
	opts.Labels = nil
	for _, l := range strings.Split(labels, ",") {
		if l = strings.TrimSpace(l); l != "" {
			opts.Labels = append(opts.Labels, l)
		}
	}
	return title, opts, nil
}

func listCmd() *cobra.Command {
	var f workspace.Filter
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List work items",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			items, err := ws.ListItems(f)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"UID", "Title", "State", "Assignee", "Labels", "Updated"})
			for _, it := range items {
				tw.AppendRow(table.Row{
					it.UID,
					it.Title,
					it.State,
					it.Assignee,
					strings.Join(it.Labels, ","),
					it.UpdatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&f.State, "state", "", "state filter")
	cmd.Flags().StringVar(&f.Assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&f.Label, "label", "", "label filter")
	return cmd
}

func getCmd() *cobra.Command {
	var withComments bool
	cmd := &cobra.Command{
		Use:   "get <uid>",
		Short: "Show one work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			it, err := ws.GetItem(args[0])
			if err != nil {
				return err
			}
			if !withComments {
				return printJSONOrTable(it)
			}
			events, err := ws.ReadEvents(it.UID, nil)
			if err != nil {
				return err
			}
			var comments []event.Event
			for _, ev := range events {
				if ev.Type == event.TypeCommentAdded {
					comments = append(comments, ev)
				}
			}
			return printJSONOrTable(map[string]any{
				"item":     it,
				"comments": comments,
			})
		},
	}
	cmd.Flags().BoolVar(&withComments, "comments", false, "include comment history")
	return cmd
}

func setCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <uid> <path=value>...",
		Short: "Set item fields by dot path",
		Long: `Set fields on an item document. Values are parsed as JSON when
possible and kept as literal strings otherwise:

  wt set fs:fix-login state=IN_PROGRESS fields.priority=2 fields.blocked=true`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			ops := make([]patch.SetOperation, 0, len(args)-1)
			for _, raw := range args[1:] {
				op, err := patch.ParseSetOperation(raw)
				if err != nil {
					return err
				}
				ops = append(ops, op)
			}
			it, err := ws.SetFields(args[0], ops, actor())
			if err != nil {
				return err
			}
			return printJSONOrTable(it)
		},
	}
	return cmd
}

func patchCmd() *cobra.Command {
	var merge string
	cmd := &cobra.Command{
		Use:   "patch <uid>",
		Short: "Apply a JSON merge patch to an item",
		Long: `Apply an RFC 7396 merge patch to the item document. Null values
remove keys:

  wt patch fs:fix-login --merge '{"assignee":"sam","fields":{"blocked":null}}'

Pass --merge - to read the patch from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			raw := []byte(merge)
			if merge == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}
			if len(raw) == 0 {
				return fmt.Errorf("--merge is required")
			}
			var mergePatch any
			if err := json.Unmarshal(raw, &mergePatch); err != nil {
				return fmt.Errorf("invalid merge patch: %w", err)
			}
			it, err := ws.PatchItem(args[0], mergePatch, actor())
			if err != nil {
				return err
			}
			return printJSONOrTable(it)
		},
	}
	cmd.Flags().StringVar(&merge, "merge", "", "merge patch JSON ('-' for stdin)")
	return cmd
}

func eventsCmd() *cobra.Command {
	var sinceDays int
	cmd := &cobra.Command{
		Use:   "events <uid>",
		Short: "Show an item's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			var since *time.Time
			if sinceDays > 0 {
				cutoff := time.Now().UTC().AddDate(0, 0, -sinceDays)
				since = &cutoff
			}
			events, err := ws.ReadEvents(args[0], since)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(events)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Time", "Type", "Actor", "Detail"})
			for _, ev := range events {
				tw.AppendRow(table.Row{
					ev.Timestamp.Local().Format("2006-01-02 15:04"),
					ev.Type,
					ev.Actor,
					eventDetail(ev),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&sinceDays, "since", 0, "only events from the last N days")
	return cmd
}

func eventDetail(ev event.Event) string {
	switch p := ev.Payload.(type) {
	case event.StateChange:
		return p.From + " -> " + p.To
	case event.FieldChange:
		return fmt.Sprintf("%s: %v -> %v", p.Path, p.OldValue, p.NewValue)
	case event.AssigneeChange:
		return deref(p.From) + " -> " + deref(p.To)
	case event.Label:
		return p.Label
	case event.Comment:
		return p.Message
	case event.AiAction:
		return p.Tool + " " + p.Action
	case nil:
		return ""
	default:
		b, _ := json.Marshal(p)
		return string(b)
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func logCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "log <uid>",
		Short: "Add a comment to an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("-m is required")
			}
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if err := ws.AddComment(args[0], message, actor()); err != nil {
				return err
			}
			fmt.Printf("logged on %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func shiftCmd(use, alias, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use + " <uid>",
		Aliases: []string{alias},
		Short:   short,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			shift := ws.AdvanceItem
			if use == "revert" {
				shift = ws.RevertItem
			}
			from, to, it, moved, err := shift(args[0], actor())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(it)
			}
			if !moved {
				fmt.Printf("%s already in %s\n", it.UID, color.YellowString(from))
				return nil
			}
			fmt.Printf("%s: %s -> %s\n", it.UID, color.CyanString(from), color.GreenString(to))
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP automation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			handler, err := server.New(server.Config{
				Workspace: ws,
				BasePath:  basePath,
				Auth:      server.AuthConfig{JWTSecret: os.Getenv("WORKTRACK_JWT_SECRET")},
			})
			if err != nil {
				return err
			}
			return runHTTP(cmd.Context(), addr, handler, fmt.Sprintf("Serving worktrack API on http://%s%s", addr, basePath))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func mcpCmd() *cobra.Command {
	root := &cobra.Command{Use: "mcp", Short: "Model Context Protocol server"}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			return mcp.NewServer(ws).Serve(cmd.Context(), mcp.Stdio())
		},
	})
	return root
}

func boardCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Serve the kanban board UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			return runHTTP(cmd.Context(), addr, board.New(ws), fmt.Sprintf("Serving board on http://%s", addr))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	return cmd
}

func runHTTP(ctx context.Context, addr string, handler http.Handler, banner string) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	fmt.Println(banner)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
