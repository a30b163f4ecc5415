package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/slate/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerBoardTools registers board read and card creation tools.
func registerBoardTools(srv *mcpserver.MCPServer, boards common.BoardService) {
	srv.AddTool(
		mcp.NewTool(
			"slate.list_boards",
			mcp.WithDescription("List boards."),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived boards")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := boards.ListBoards(ctx, req.GetBool("include_archived", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"boards": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_boards result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"slate.get_board",
			mcp.WithDescription("Return one board with its lists and cards in display order."),
			mcp.WithString("board_id", mcp.Required(), mcp.Description("Board identifier")),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived lists and cards")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			boardID, err := req.RequireString("board_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			detail, err := boards.GetBoard(ctx, boardID, req.GetBool("include_archived", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(detail)
			if err != nil {
				return nil, fmt.Errorf("encode get_board result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"slate.create_card",
			mcp.WithDescription("Append one card to the end of a list."),
			mcp.WithString("list_id", mcp.Required(), mcp.Description("Destination list identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Card title")),
			mcp.WithString("description", mcp.Description("Card description")),
			mcp.WithString("priority", mcp.Description("low|medium|high"), mcp.Enum("low", "medium", "high")),
			mcp.WithArray("labels", mcp.Description("Optional labels"), mcp.WithStringItems()),
			mcp.WithString("actor_id", mcp.Description("Actor recorded on the change event")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				ListID      string   `json:"list_id"`
				Title       string   `json:"title"`
				Description string   `json:"description"`
				Priority    string   `json:"priority"`
				Labels      []string `json:"labels"`
				ActorID     string   `json:"actor_id"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.ListID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "list_id" not found`), nil
			}
			if strings.TrimSpace(args.Title) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "title" not found`), nil
			}
			card, err := boards.CreateCard(ctx, common.CreateCardRequest{
				ListID:      args.ListID,
				Title:       args.Title,
				Description: args.Description,
				Priority:    args.Priority,
				Labels:      args.Labels,
				ActorID:     args.ActorID,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode create_card result: %w", err)
			}
			return result, nil
		},
	)
}

// registerEditTools registers card edit, delete, and restore tools.
func registerEditTools(srv *mcpserver.MCPServer, edits common.EditService) {
	srv.AddTool(
		mcp.NewTool(
			"slate.update_card",
			mcp.WithDescription("Edit card details. Omitted fields keep their current value."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Card identifier")),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("description", mcp.Description("New description")),
			mcp.WithString("priority", mcp.Description("low|medium|high"), mcp.Enum("low", "medium", "high")),
			mcp.WithArray("labels", mcp.Description("Replacement labels"), mcp.WithStringItems()),
			mcp.WithBoolean("clear_due", mcp.Description("Remove the due date")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				CardID      string    `json:"card_id"`
				Title       *string   `json:"title"`
				Description *string   `json:"description"`
				Priority    *string   `json:"priority"`
				Labels      *[]string `json:"labels"`
				ClearDue    bool      `json:"clear_due"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.CardID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "card_id" not found`), nil
			}
			card, err := edits.UpdateCard(ctx, common.UpdateCardRequest{
				CardID:      args.CardID,
				Title:       args.Title,
				Description: args.Description,
				Priority:    args.Priority,
				Labels:      args.Labels,
				ClearDue:    args.ClearDue,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode update_card result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"slate.delete_card",
			mcp.WithDescription("Archive or permanently delete one card. Without mode the server default applies."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Card identifier")),
			mcp.WithString("mode", mcp.Description("archive|hard"), mcp.Enum("archive", "hard")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			mode := req.GetString("mode", "")
			if err := edits.DeleteCard(ctx, common.DeleteCardRequest{CardID: cardID, Mode: mode}); err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"card_id": cardID, "deleted": true, "mode": mode})
			if err != nil {
				return nil, fmt.Errorf("encode delete_card result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"slate.restore_card",
			mcp.WithDescription("Restore an archived card at the end of its list."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Card identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			cardID, err := req.RequireString("card_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			card, err := edits.RestoreCard(ctx, cardID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode restore_card result: %w", err)
			}
			return result, nil
		},
	)
}

// moveArgs is the shared argument shape of the move tools.
type moveArgs struct {
	ID        string `json:"-"`
	FromIndex *int   `json:"from_index"`
	ToIndex   *int   `json:"to_index"`
	Target    string `json:"-"`
	ActorID   string `json:"actor_id"`
}

// bindMoveArgs decodes move arguments and enforces the required id and drop index.
func bindMoveArgs(req mcp.CallToolRequest, idKey, targetKey string) (moveArgs, *mcp.CallToolResult) {
	var args moveArgs
	if err := req.BindArguments(&args); err != nil {
		return moveArgs{}, invalidRequestToolResult(err)
	}
	id, err := req.RequireString(idKey)
	if err != nil {
		return moveArgs{}, invalidRequestToolResult(err)
	}
	if args.ToIndex == nil {
		return moveArgs{}, mcp.NewToolResultError(`invalid_request: required argument "to_index" not found`)
	}
	args.ID = id
	args.Target = req.GetString(targetKey, "")
	return args, nil
}

// registerMoveTools registers drag-and-drop reorder tools.
func registerMoveTools(srv *mcpserver.MCPServer, moves common.MoveService) {
	srv.AddTool(
		mcp.NewTool(
			"slate.move_list",
			mcp.WithDescription("Move one list to a drop index within its board or onto another board."),
			mcp.WithString("list_id", mcp.Required(), mcp.Description("List identifier")),
			mcp.WithNumber("to_index", mcp.Required(), mcp.Description("Drop index in the destination board")),
			mcp.WithNumber("from_index", mcp.Description("Current index, when known")),
			mcp.WithString("target_board_id", mcp.Description("Destination board; defaults to the current board")),
			mcp.WithString("actor_id", mcp.Description("Actor recorded on the change event")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, bad := bindMoveArgs(req, "list_id", "target_board_id")
			if bad != nil {
				return bad, nil
			}
			list, err := moves.MoveList(ctx, common.MoveListRequest{
				ListID:        args.ID,
				FromIndex:     args.FromIndex,
				ToIndex:       args.ToIndex,
				TargetBoardID: args.Target,
				ActorID:       args.ActorID,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(list)
			if err != nil {
				return nil, fmt.Errorf("encode move_list result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"slate.move_card",
			mcp.WithDescription("Move one card to a drop index within its list or into another list."),
			mcp.WithString("card_id", mcp.Required(), mcp.Description("Card identifier")),
			mcp.WithNumber("to_index", mcp.Required(), mcp.Description("Drop index in the destination list")),
			mcp.WithNumber("from_index", mcp.Description("Current index, when known")),
			mcp.WithString("target_list_id", mcp.Description("Destination list; defaults to the current list")),
			mcp.WithString("actor_id", mcp.Description("Actor recorded on the change event")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, bad := bindMoveArgs(req, "card_id", "target_list_id")
			if bad != nil {
				return bad, nil
			}
			card, err := moves.MoveCard(ctx, common.MoveCardRequest{
				CardID:       args.ID,
				FromIndex:    args.FromIndex,
				ToIndex:      args.ToIndex,
				TargetListID: args.Target,
				ActorID:      args.ActorID,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(card)
			if err != nil {
				return nil, fmt.Errorf("encode move_card result: %w", err)
			}
			return result, nil
		},
	)
}

// registerSchemaTool registers the `slate.get_schema` tool.
func registerSchemaTool(srv *mcpserver.MCPServer, reader common.SchemaReader) {
	srv.AddTool(
		mcp.NewTool(
			"slate.get_schema",
			mcp.WithDescription("Return the current query-protocol type document compiled from entity metadata."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			doc, err := reader.Schema(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(doc)
			if err != nil {
				return nil, fmt.Errorf("encode get_schema result: %w", err)
			}
			return result, nil
		},
	)
}
