package gateway

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dhanucoding/retro-app/go/internal/apperrors"
	"github.com/dhanucoding/retro-app/go/internal/models"
)

// Command is an inbound frontend request. Action selects the operation;
// the remaining fields are action-specific.
type Command struct {
	Action     string            `json:"action"`
	Category   models.Category   `json:"category,omitempty"`
	ItemID     string            `json:"itemId,omitempty"`
	Text       string            `json:"text,omitempty"`
	Name       string            `json:"name,omitempty"`
	Date       string            `json:"date,omitempty"`
	Code       string            `json:"code,omitempty"`
	Minutes    int               `json:"minutes,omitempty"`
	Mode       models.RevealMode `json:"mode,omitempty"`
	StartFresh bool              `json:"startFresh,omitempty"`
}

// dispatch runs one command against the application layer. Failures go
// back to the requesting client only; state changes reach everyone through
// the notifier fan-out.
func (h *Hub) dispatch(ctx context.Context, a RetroApp, c *client, cmd Command) {
	var err error
	switch cmd.Action {
	case "addItem":
		_, err = a.AddItem(cmd.Category, cmd.Text)
	case "editItem":
		err = a.EditItem(cmd.Category, cmd.ItemID, cmd.Text)
	case "deleteItem":
		err = a.DeleteItem(cmd.Category, cmd.ItemID)
	case "voteItem":
		err = a.VoteItem(cmd.Category, cmd.ItemID)
	case "addTeamMember":
		err = a.AddTeamMember(cmd.Name)
	case "removeTeamMember":
		err = a.RemoveTeamMember(cmd.Name)
	case "setSprintMeta":
		a.SetSprintMeta(cmd.Name, cmd.Date)

	case "createSession":
		var code string
		code, err = a.CreateSession(ctx, cmd.StartFresh)
		if err == nil {
			h.Notice("Session created! Share code: " + code)
		}
	case "joinSession":
		err = a.JoinSession(ctx, cmd.Code)
		if err == nil {
			h.Notice("Joined session successfully!")
		}
	case "leaveSession":
		err = a.LeaveSession(ctx)
		if err == nil {
			h.Notice("Left the session")
		}
	case "endSession":
		err = a.EndSession(ctx)
		if err == nil {
			h.Notice("Session ended for all participants")
		}
	case "startFresh":
		err = a.StartFresh(ctx)
		if err == nil {
			h.Notice("Started fresh with an empty board")
		}

	case "export":
		content, filename := a.ExportMarkdown()
		c.sendEvent(EventTypeExport, ExportPayload{Filename: filename, Content: content})

	case "setTimerDuration":
		err = a.SetTimerDuration(cmd.Minutes)
	case "startTimer":
		err = a.StartTimer()
	case "pauseTimer":
		err = a.PauseTimer()
	case "resetTimer":
		err = a.ResetTimer()

	case "setRevealMode":
		err = a.SetRevealMode(cmd.Mode)
	case "toggleReveal":
		err = a.ToggleReveal()

	default:
		err = fmt.Errorf("unknown action %q", cmd.Action)
	}

	if err != nil {
		log.Debug().Err(err).Str("action", cmd.Action).Str("client_id", c.id).Msg("command rejected")
		c.sendError(cmd.Action, err)
	}
}

func (c *client) sendError(action string, err error) {
	c.sendEvent(EventTypeError, ErrorPayload{
		Action:  action,
		Kind:    apperrors.KindOf(err).String(),
		Message: err.Error(),
	})
}
