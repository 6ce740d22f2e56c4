package conversation

import (
	"context"
	"errors"
	"fmt"

	"aprs-friend-alert/internal/model"

	"github.com/looplab/fsm"
)

const (
	evAskSetupKey = "ask_setup_key"
	evAskName     = "ask_name"
	evAskLabel    = "ask_label"
	evAskText     = "ask_text"
	evAskConfirm  = "ask_confirm"
	evAskChoice   = "ask_choice"
	evDone        = "done"
	evReset       = "reset"
)

var (
	stIdle         = string(model.StateIdle)
	stSetupKey     = string(model.StateAwaitingSetupKey)
	stDisplayName  = string(model.StateAwaitingDisplayName)
	stAddressLabel = string(model.StateAwaitingAddressLabel)
	stAddressText  = string(model.StateAwaitingAddressText)
	stConfirmation = string(model.StateAwaitingAddressConfirmation)
	stChoice       = string(model.StateAwaitingAmbiguousDestinationChoice)

	allStates = []string{stIdle, stSetupKey, stDisplayName, stAddressLabel, stAddressText, stConfirmation, stChoice}
)

// newDialog rebuilds the state machine of one chat from its stored state.
func newDialog(state model.ConversationState) *fsm.FSM {
	if state == "" {
		state = model.StateIdle
	}
	return fsm.NewFSM(
		string(state),
		fsm.Events{
			{Name: evAskSetupKey, Src: []string{stIdle, stSetupKey}, Dst: stSetupKey},
			{Name: evAskName, Src: []string{stIdle, stSetupKey, stDisplayName}, Dst: stDisplayName},
			{Name: evAskLabel, Src: []string{stIdle, stAddressLabel}, Dst: stAddressLabel},
			{Name: evAskText, Src: []string{stIdle, stAddressLabel, stAddressText, stConfirmation}, Dst: stAddressText},
			{Name: evAskConfirm, Src: []string{stAddressText}, Dst: stConfirmation},
			{Name: evAskChoice, Src: []string{stIdle}, Dst: stChoice},
			{Name: evDone, Src: []string{stDisplayName, stConfirmation, stChoice, stIdle}, Dst: stIdle},
			{Name: evReset, Src: allStates, Dst: stIdle},
		},
		fsm.Callbacks{},
	)
}

// fire moves the dialog and mirrors the result into conv. Returning to idle
// clears the scratch bag.
func fire(ctx context.Context, dialog *fsm.FSM, conv *model.Conversation, event string) error {
	err := dialog.Event(ctx, event)
	var same fsm.NoTransitionError
	var samePtr *fsm.NoTransitionError
	if err != nil && !errors.As(err, &same) && !errors.As(err, &samePtr) {
		return fmt.Errorf("dialog event %s in state %s: %w", event, dialog.Current(), err)
	}
	conv.State = model.ConversationState(dialog.Current())
	if conv.State == model.StateIdle {
		conv.Scratch = model.Scratch{}
	}
	return nil
}
