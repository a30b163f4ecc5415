package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/domain"
)

// serviceCommand opens the runtime, runs fn inside a logged command flow, and closes everything.
func serviceCommand(state *cliState, name string, fn func(cmd *cobra.Command, args []string, svc *app.Service) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := state.openRuntime(name)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()
		return withCommandLog(rt.logger, name, func() error {
			return fn(cmd, args, rt.service)
		})
	}
}

func newBoardCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Manage boards",
	}

	var includeArchived bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List boards",
		Args:  cobra.NoArgs,
		RunE: serviceCommand(state, "board list", func(cmd *cobra.Command, _ []string, svc *app.Service) error {
			boards, err := svc.ListBoards(cmd.Context(), includeArchived)
			if err != nil {
				return err
			}
			return writeBoardTable(cmd.OutOrStdout(), boards)
		}),
	}
	list.Flags().BoolVar(&includeArchived, "all", false, "include archived boards")

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a board with the configured lists",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "board create", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			board, err := svc.CreateBoard(cmd.Context(), app.CreateBoardInput{Name: args[0], Description: description})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", board.ID, board.Name)
			return err
		}),
	}
	create.Flags().StringVar(&description, "description", "", "board description")

	var showArchived bool
	show := &cobra.Command{
		Use:   "show <board-id>",
		Short: "Render a board with its lists and cards in order",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "board show", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			view, err := svc.GetBoardView(cmd.Context(), args[0], showArchived)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderBoard(view))
			return err
		}),
	}
	show.Flags().BoolVar(&showArchived, "all", false, "include archived lists and cards")

	var limit int
	events := &cobra.Command{
		Use:   "events <board-id>",
		Short: "Show the newest change events for a board",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "board events", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			items, err := svc.ListBoardChangeEvents(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return writeEventTable(cmd.OutOrStdout(), items)
		}),
	}
	events.Flags().IntVar(&limit, "limit", 20, "maximum events to show")

	var (
		newName        string
		newDescription string
	)
	edit := &cobra.Command{
		Use:   "edit <board-id>",
		Short: "Change a board's name or description",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "board edit", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			if !cmd.Flags().Changed("name") && !cmd.Flags().Changed("description") {
				return errors.New("board edit needs --name or --description")
			}
			current, err := svc.GetBoard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			in := app.UpdateBoardInput{BoardID: current.ID, Name: current.Name, Description: current.Description}
			if cmd.Flags().Changed("name") {
				in.Name = newName
			}
			if cmd.Flags().Changed("description") {
				in.Description = newDescription
			}
			board, err := svc.UpdateBoard(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", board.ID, board.Name)
			return err
		}),
	}
	edit.Flags().StringVar(&newName, "name", "", "new board name")
	edit.Flags().StringVar(&newDescription, "description", "", "new board description")

	archive := &cobra.Command{
		Use:   "archive <board-id>",
		Short: "Archive a board",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "board archive", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			board, err := svc.ArchiveBoard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tarchived\n", board.ID)
			return err
		}),
	}

	restore := &cobra.Command{
		Use:   "restore <board-id>",
		Short: "Restore an archived board",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "board restore", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			board, err := svc.RestoreBoard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\trestored\n", board.ID)
			return err
		}),
	}

	cmd.AddCommand(list, create, show, events, edit, archive, restore)
	return cmd
}

func newListCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Manage lists",
	}

	var wipLimit int
	add := &cobra.Command{
		Use:   "add <board-id> <name>",
		Short: "Append a list to a board",
		Args:  cobra.ExactArgs(2),
		RunE: serviceCommand(state, "list add", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			list, err := svc.CreateList(cmd.Context(), app.CreateListInput{BoardID: args[0], Name: args[1], WIPLimit: wipLimit})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", list.ID, list.Name)
			return err
		}),
	}
	add.Flags().IntVar(&wipLimit, "wip", 0, "work-in-progress limit (0 = none)")

	var (
		move        moveFlags
		targetBoard string
	)
	moveCmd := &cobra.Command{
		Use:   "move <list-id>",
		Short: "Move a list to a new index, optionally onto another board",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "list move", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			list, err := svc.MoveList(cmd.Context(), app.MoveListInput{
				ListID:        args[0],
				FromIndex:     move.from(cmd),
				ToIndex:       move.to(cmd),
				TargetBoardID: targetBoard,
				ActorID:       move.actor,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tboard=%s\tposition=%g\n", list.ID, list.BoardID, list.Position)
			return err
		}),
	}
	move.bind(moveCmd)
	moveCmd.Flags().StringVar(&targetBoard, "board", "", "target board id (defaults to the current board)")

	rename := &cobra.Command{
		Use:   "rename <list-id> <name>",
		Short: "Rename a list",
		Args:  cobra.ExactArgs(2),
		RunE: serviceCommand(state, "list rename", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			list, err := svc.RenameList(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", list.ID, list.Name)
			return err
		}),
	}

	archive := &cobra.Command{
		Use:   "archive <list-id>",
		Short: "Archive a list and hide it from its board",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "list archive", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			list, err := svc.ArchiveList(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tarchived\n", list.ID)
			return err
		}),
	}

	cmd.AddCommand(add, moveCmd, rename, archive)
	return cmd
}

func newCardCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Manage cards",
	}

	var (
		description string
		priority    string
		due         string
		labels      []string
	)
	add := &cobra.Command{
		Use:   "add <list-id> <title>",
		Short: "Append a card to a list",
		Args:  cobra.ExactArgs(2),
		RunE: serviceCommand(state, "card add", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			dueAt, err := parseDue(due)
			if err != nil {
				return err
			}
			card, err := svc.CreateCard(cmd.Context(), app.CreateCardInput{
				ListID:      args[0],
				Title:       args[1],
				Description: description,
				Priority:    domain.Priority(strings.ToLower(strings.TrimSpace(priority))),
				DueAt:       dueAt,
				Labels:      labels,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", card.ID, card.Title)
			return err
		}),
	}
	add.Flags().StringVar(&description, "description", "", "card description")
	add.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	add.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC3339)")
	add.Flags().StringSliceVar(&labels, "label", nil, "card label (repeatable)")

	var (
		move       moveFlags
		targetList string
	)
	moveCmd := &cobra.Command{
		Use:   "move <card-id>",
		Short: "Move a card to a new index, optionally into another list",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "card move", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			card, err := svc.MoveCard(cmd.Context(), app.MoveCardInput{
				CardID:       args[0],
				FromIndex:    move.from(cmd),
				ToIndex:      move.to(cmd),
				TargetListID: targetList,
				ActorID:      move.actor,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tlist=%s\tposition=%g\n", card.ID, card.ListID, card.Position)
			return err
		}),
	}
	move.bind(moveCmd)
	moveCmd.Flags().StringVar(&targetList, "list", "", "target list id (defaults to the current list)")

	var (
		edits    cardEditFlags
		clearDue bool
	)
	edit := &cobra.Command{
		Use:   "edit <card-id>",
		Short: "Change card details; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "card edit", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			current, err := svc.GetCard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			in, err := edits.apply(cmd, current, clearDue)
			if err != nil {
				return err
			}
			card, err := svc.UpdateCard(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", card.ID, card.Title, card.Priority)
			return err
		}),
	}
	edits.bind(edit)
	edit.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")

	var mode string
	remove := &cobra.Command{
		Use:   "rm <card-id>",
		Short: "Archive or permanently delete a card",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "card rm", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			if err := svc.DeleteCard(cmd.Context(), args[0], app.DeleteMode(mode)); err != nil {
				return err
			}
			outcome := "archived"
			if _, err := svc.GetCard(cmd.Context(), args[0]); errors.Is(err, app.ErrNotFound) {
				outcome = "deleted"
			} else if err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], outcome)
			return err
		}),
	}
	remove.Flags().StringVar(&mode, "mode", "", "archive or hard (defaults to delete.default_mode)")

	restore := &cobra.Command{
		Use:   "restore <card-id>",
		Short: "Restore an archived card at the end of its list",
		Args:  cobra.ExactArgs(1),
		RunE: serviceCommand(state, "card restore", func(cmd *cobra.Command, args []string, svc *app.Service) error {
			card, err := svc.RestoreCard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tlist=%s\tposition=%g\n", card.ID, card.ListID, card.Position)
			return err
		}),
	}

	cmd.AddCommand(add, moveCmd, edit, remove, restore)
	return cmd
}

// cardEditFlags holds card edit flags; only flags set on the command line are applied.
type cardEditFlags struct {
	title       string
	description string
	priority    string
	due         string
	labels      []string
}

func (f *cardEditFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "new title")
	cmd.Flags().StringVar(&f.description, "description", "", "new description")
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&f.due, "due", "", "due date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringSliceVar(&f.labels, "label", nil, "replacement label (repeatable)")
}

func (f *cardEditFlags) apply(cmd *cobra.Command, current domain.Card, clearDue bool) (app.UpdateCardInput, error) {
	changed := cmd.Flags().Changed
	if clearDue && changed("due") {
		return app.UpdateCardInput{}, errors.New("--due and --clear-due are exclusive")
	}
	in := app.UpdateCardInput{
		CardID:      current.ID,
		Title:       current.Title,
		Description: current.Description,
		Priority:    current.Priority,
		DueAt:       current.DueAt,
		Labels:      current.Labels,
	}
	if changed("title") {
		in.Title = f.title
	}
	if changed("description") {
		in.Description = f.description
	}
	if changed("priority") {
		in.Priority = domain.Priority(strings.ToLower(strings.TrimSpace(f.priority)))
	}
	if changed("due") {
		dueAt, err := parseDue(f.due)
		if err != nil {
			return app.UpdateCardInput{}, err
		}
		in.DueAt = dueAt
	}
	if clearDue {
		in.DueAt = nil
	}
	if changed("label") {
		in.Labels = f.labels
	}
	return in, nil
}

// moveFlags holds the index flags shared by list and card moves.
// Unset flags stay nil so the service can reject a missing target index.
type moveFlags struct {
	fromIndex int
	toIndex   int
	actor     string
}

func (m *moveFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&m.fromIndex, "from", 0, "current index (informational)")
	cmd.Flags().IntVar(&m.toIndex, "to", 0, "target index within the destination")
	cmd.Flags().StringVar(&m.actor, "actor", "", "actor id recorded on the change event")
}

func (m *moveFlags) from(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("from") {
		return nil
	}
	value := m.fromIndex
	return &value
}

func (m *moveFlags) to(cmd *cobra.Command) *int {
	if !cmd.Flags().Changed("to") {
		return nil
	}
	value := m.toIndex
	return &value
}

// parseDue accepts a calendar date or a full RFC3339 timestamp.
func parseDue(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("invalid --due %q: want YYYY-MM-DD or RFC3339", raw)
}

func writeBoardTable(out io.Writer, boards []domain.Board) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSLUG\tARCHIVED")
	for _, board := range boards {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", board.ID, board.Name, board.Slug, board.ArchivedAt != nil)
	}
	return w.Flush()
}

func writeEventTable(out io.Writer, events []domain.ChangeEvent) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WHEN\tOP\tENTITY\tID\tACTOR")
	for _, event := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			event.OccurredAt.UTC().Format(time.RFC3339),
			event.Operation,
			event.EntityType,
			event.EntityID,
			event.ActorID,
		)
	}
	return w.Flush()
}

var (
	boardTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	listStyle       = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(42)
	listHeaderStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// renderBoard lays lists out side by side with their cards in display order.
func renderBoard(view app.BoardView) string {
	columns := make([]string, 0, len(view.Lists))
	for _, lv := range view.Lists {
		header := lv.List.Name
		if lv.List.WIPLimit > 0 {
			header = fmt.Sprintf("%s (%d/%d)", header, len(lv.Cards), lv.List.WIPLimit)
		}
		lines := []string{listHeaderStyle.Render(header)}
		if len(lv.Cards) == 0 {
			lines = append(lines, mutedStyle.Render("empty"))
		}
		for _, card := range lv.Cards {
			line := "• " + card.Title
			if card.Priority == domain.PriorityHigh {
				line += " !"
			}
			lines = append(lines, line)
		}
		lines = append(lines, mutedStyle.Render(lv.List.ID))
		columns = append(columns, listStyle.Render(strings.Join(lines, "\n")))
	}
	title := boardTitleStyle.Render(view.Board.Name)
	if len(columns) == 0 {
		return title + "\n" + mutedStyle.Render("no lists")
	}
	return title + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}
