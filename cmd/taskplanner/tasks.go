package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"task-planner/internal/model"
	"task-planner/internal/repository"
	"task-planner/internal/service"
)

const cliTimeLayout = "2006-01-02 15:04"

func tasksCmd() *cobra.Command {
	var owner uint

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage one user's tasks from the command line",
		Long: `Manage one user's tasks directly in the database.

A running bot or serve process keeps its own copy of each task list. It picks up
changes made here on the next periodic report, on /refresh in the bot, or on
POST /api/users/<id>/refresh; reminders of tasks added here are armed at that
point or at the next startup.`,
	}
	cmd.PersistentFlags().UintVarP(&owner, "user", "u", 0, "owner id (internal user id)")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(tasksListCmd(&owner))
	cmd.AddCommand(tasksAddCmd(&owner))
	cmd.AddCommand(tasksDoneCmd(&owner))
	cmd.AddCommand(tasksDeleteCmd(&owner))
	return cmd
}

// withStore opens the database, loads the owner's collection and runs fn.
func withStore(ctx context.Context, owner uint, fn func(store *service.Store, loc *time.Location) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	store := service.NewStore(owner, repository.NewTaskRepository(db), nil, service.WithLocation(loc))
	if err := store.Load(ctx); err != nil {
		return err
	}
	return fn(store, loc)
}

func tasksListCmd(owner *uint) *cobra.Command {
	var (
		scope  string
		search string
		tags   []string
		sortBy string
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with optional filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedScope, err := service.ParseScope(scope)
			if err != nil {
				return err
			}
			sortKey, err := service.ParseSortKey(sortBy)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), *owner, func(store *service.Store, loc *time.Location) error {
				tasks := store.Query(service.Query{
					Scope:        parsedScope,
					SearchText:   strings.TrimSpace(search),
					RequiredTags: tags,
					SortKey:      sortKey,
					Now:          time.Now().In(loc),
				})
				return renderTasks(cmd.OutOrStdout(), tasks, format, loc)
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "all", "all or today")
	cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive title substring")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "required tag (repeatable)")
	cmd.Flags().StringVar(&sortBy, "sort", "due", "due or title")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "text, yaml or json")
	return cmd
}

func tasksAddCmd(owner *uint) *cobra.Command {
	var (
		description string
		due         string
		reminder    string
		tags        []string
		repeat      string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repetition, err := model.ParseRepetition(repeat)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), *owner, func(store *service.Store, loc *time.Location) error {
				draft := model.Draft{
					Title:       strings.Join(args, " "),
					Description: description,
					Tags:        tags,
					Repetition:  repetition,
				}
				if draft.DueDate, err = parseCLITime(due, loc); err != nil {
					return fmt.Errorf("due: %w", err)
				}
				if draft.Reminder, err = parseCLITime(reminder, loc); err != nil {
					return fmt.Errorf("reminder: %w", err)
				}

				task, err := store.Add(cmd.Context(), draft)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", task.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVar(&due, "due", "", "due date, YYYY-MM-DD or \"YYYY-MM-DD HH:MM\"")
	cmd.Flags().StringVar(&reminder, "remind", "", "reminder time, YYYY-MM-DD or \"YYYY-MM-DD HH:MM\"")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag (repeatable)")
	cmd.Flags().StringVarP(&repeat, "repeat", "r", "none", "none, daily, weekly or monthly")
	return cmd
}

func tasksDoneCmd(owner *uint) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task's completion; completing a repeating task schedules the next one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *owner, func(store *service.Store, loc *time.Location) error {
				if _, ok := store.Get(args[0]); !ok {
					return fmt.Errorf("%w: %s", service.ErrTaskNotFound, args[0])
				}
				res, err := store.ToggleComplete(cmd.Context(), args[0])
				out := cmd.OutOrStdout()
				if res.Updated != nil {
					fmt.Fprintf(out, "%s completed=%t\n", res.Updated.ID, res.Updated.Completed)
				}
				if res.Spawned != nil {
					fmt.Fprintf(out, "next %s due %s\n", res.Spawned.ID, formatCLITime(res.Spawned.DueDate, loc))
				}
				return err
			})
		},
	}
}

func tasksDeleteCmd(owner *uint) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *owner, func(store *service.Store, _ *time.Location) error {
				if _, ok := store.Get(args[0]); !ok {
					return fmt.Errorf("%w: %s", service.ErrTaskNotFound, args[0])
				}
				if err := store.DeleteByID(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

// taskView is the printable shape of a task.
type taskView struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Due         string   `yaml:"due,omitempty" json:"due,omitempty"`
	Reminder    string   `yaml:"reminder,omitempty" json:"reminder,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Repetition  string   `yaml:"repetition" json:"repetition"`
	Completed   bool     `yaml:"completed" json:"completed"`
}

func viewOf(task model.Task, loc *time.Location) taskView {
	return taskView{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Due:         formatCLITime(task.DueDate, loc),
		Reminder:    formatCLITime(task.Reminder, loc),
		Tags:        task.Tags,
		Repetition:  string(task.Repetition),
		Completed:   task.Completed,
	}
}

func renderTasks(w io.Writer, tasks []model.Task, format string, loc *time.Location) error {
	views := make([]taskView, len(tasks))
	for i, task := range tasks {
		views[i] = viewOf(task, loc)
	}

	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "", "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDONE\tTITLE\tDUE\tREPEAT\tTAGS")
		for _, v := range views {
			done := " "
			if v.Completed {
				done = "x"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", v.ID, done, v.Title, v.Due, v.Repetition, strings.Join(v.Tags, ","))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func parseCLITime(raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{cliTimeLayout, "2006-01-02", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", raw)
}

func formatCLITime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(cliTimeLayout)
}
