package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/calbera/shepherd/internal/task"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Work with the task board",
}

var (
	taskTitle    string
	taskOwner    string
	taskPriority string
	taskProblem  string
	taskScope    string
	taskCriteria []string
	taskTimeout  int
)

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a task to the board",
	RunE:  runTaskAdd,
}

var taskListLane string

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks on the board",
	RunE:  runTaskList,
}

func init() {
	taskAddCmd.Flags().StringVar(&taskTitle, "title", "", "task title (required)")
	taskAddCmd.Flags().StringVar(&taskOwner, "owner", "", "slot that owns the task (required)")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", string(task.PriorityP2), "priority (P0-P3)")
	taskAddCmd.Flags().StringVar(&taskProblem, "problem", "", "problem statement")
	taskAddCmd.Flags().StringVar(&taskScope, "scope", "", "scope boundaries")
	taskAddCmd.Flags().StringArrayVar(&taskCriteria, "criterion", nil, "acceptance criterion (repeatable)")
	taskAddCmd.Flags().IntVar(&taskTimeout, "timeout", 0, "session timeout in minutes (0 uses the configured default)")
	taskAddCmd.MarkFlagRequired("title")
	taskAddCmd.MarkFlagRequired("owner")

	taskListCmd.Flags().StringVar(&taskListLane, "lane", "", "filter by lane")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HasSlot(taskOwner) {
		return fmt.Errorf("owner %q is not a configured slot (have: %v)", taskOwner, cfg.Slots)
	}
	switch task.Priority(taskPriority) {
	case task.PriorityP0, task.PriorityP1, task.PriorityP2, task.PriorityP3:
	default:
		return fmt.Errorf("unknown priority %q (expected P0-P3)", taskPriority)
	}

	board, _, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	created, err := board.Create(context.Background(), task.Task{
		Title:              taskTitle,
		Owner:              taskOwner,
		Priority:           task.Priority(taskPriority),
		Problem:            taskProblem,
		Scope:              taskScope,
		AcceptanceCriteria: taskCriteria,
		TimeoutMinutes:     taskTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	fmt.Printf("Created task %s (%s, %s) for %s\n", created.ID, created.Title, created.Priority, created.Owner)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	board, _, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer board.Close()

	tasks, err := board.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if taskListLane != "" {
		lane := task.Lane(taskListLane)
		if !task.ValidLane(lane) {
			return fmt.Errorf("unknown lane %q", taskListLane)
		}
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Lane == lane {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tLANE\tOWNER\tTITLE\tUPDATED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Priority, t.Lane, t.Owner, t.Title, formatAge(t.UpdatedAt))
	}
	return w.Flush()
}
