package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/jensholdgaard/stackedroll-bot/internal/roll"
	"github.com/jensholdgaard/stackedroll-bot/internal/roster"
	"github.com/jensholdgaard/stackedroll-bot/internal/stackedroll"
)

// ErrNotBound is returned when a view is drawn before the Discord session
// is started.
var ErrNotBound = errors.New("discord session not started")

// RosterSource supplies the data the overview renders.
type RosterSource interface {
	Records() []roster.PlayerRecord
	Calculator() roll.Calculator
}

// Views implements the tracker's importer and overview surfaces as messages
// in a configured Discord channel. A Views starts unbound so the manager
// can be constructed before the session exists; Bind attaches the live
// session.
type Views struct {
	mu        sync.Mutex
	session   *discordgo.Session
	channelID string
	source    RosterSource

	importerMsgID string
	overviewMsgID string
}

// NewViews returns unbound Views posting to channelID.
func NewViews(channelID string) *Views {
	return &Views{channelID: channelID}
}

// Bind attaches the live session and roster source.
func (v *Views) Bind(s *discordgo.Session, source RosterSource) {
	v.mu.Lock()
	v.session = s
	v.source = source
	v.mu.Unlock()
}

// Importer returns the importer surface.
func (v *Views) Importer() stackedroll.ImporterView { return importerView{v} }

// Overview returns the standings surface.
func (v *Views) Overview() stackedroll.OverviewView { return overviewView{v} }

type importerView struct{ v *Views }

func (iv importerView) Draw(context.Context) error {
	return iv.v.post(&iv.v.importerMsgID,
		"No stacked roll data imported yet. Paste the roster with "+
			"`/sr-import`: one `name, points, alias...` record per line, no header row.")
}

func (iv importerView) Close(context.Context) error {
	return iv.v.remove(&iv.v.importerMsgID)
}

func (iv importerView) Status(_ context.Context, msg string) {
	// Best effort; import feedback also reaches the caller as an error.
	_ = iv.v.post(nil, msg)
}

type overviewView struct{ v *Views }

func (ov overviewView) Draw(context.Context) error {
	ov.v.mu.Lock()
	source := ov.v.source
	ov.v.mu.Unlock()
	if source == nil {
		return ErrNotBound
	}

	records := source.Records()
	if len(records) == 0 {
		return ov.v.post(&ov.v.overviewMsgID, "The roster is empty.")
	}

	calc := source.Calculator()
	var b strings.Builder
	b.WriteString("**Stacked Roll Standings:**\n")
	for i, rec := range records {
		b.WriteString(fmt.Sprintf("%d. %s — %d points (roll %d-%d",
			i+1, rec.PrimaryName, rec.Points,
			calc.MinStackedRoll(rec.Points), calc.MaxStackedRoll(rec.Points)))
		if reserve := calc.Reserve(rec.Points); reserve > 0 {
			b.WriteString(fmt.Sprintf(", %d reserved", reserve))
		}
		b.WriteString(")\n")
	}
	return ov.v.post(&ov.v.overviewMsgID, b.String())
}

func (ov overviewView) Close(context.Context) error {
	return ov.v.remove(&ov.v.overviewMsgID)
}

// post sends content to the configured channel. When msgID is non-nil the
// previous message it tracks is replaced.
func (v *Views) post(msgID *string, content string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.session == nil {
		return ErrNotBound
	}
	if msgID != nil && *msgID != "" {
		_ = v.session.ChannelMessageDelete(v.channelID, *msgID)
		*msgID = ""
	}

	msg, err := v.session.ChannelMessageSend(v.channelID, content)
	if err != nil {
		return fmt.Errorf("posting to channel %s: %w", v.channelID, err)
	}
	if msgID != nil {
		*msgID = msg.ID
	}
	return nil
}

// remove deletes the tracked message, if any.
func (v *Views) remove(msgID *string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if *msgID == "" {
		return nil
	}
	if v.session == nil {
		return ErrNotBound
	}
	if err := v.session.ChannelMessageDelete(v.channelID, *msgID); err != nil {
		return fmt.Errorf("deleting message %s: %w", *msgID, err)
	}
	*msgID = ""
	return nil
}
