package chat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"livechat/internal/app/docstore"
	"livechat/internal/app/experience"
	"livechat/internal/app/user"
	"livechat/internal/app/view"
	"livechat/internal/metrics"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/logx"
	"livechat/internal/pkg/randx"
)

// User-visible alerts.
const (
	AlertSignIn             = "Please sign in to send messages."
	AlertPublicSendFailed   = "Failed to send the message. Please try again."
	AlertPrivateSendFailed  = "Failed to send the private message."
	AlertSummaryWriteFailed = "Your private message was sent, but the conversation list could not be updated."
)

// Awarder grants experience for a public message.
type Awarder interface {
	Award(ctx context.Context, userID string) (*experience.Progress, error)
}

// Composer builds and persists outgoing messages.
type Composer struct {
	store    docstore.Store
	resolver *user.Resolver
	awarder  Awarder
	quotes   *QuoteBox
	alerts   view.Alerter
	log      zerolog.Logger
}

// NewComposer wires a composer.
func NewComposer(store docstore.Store, resolver *user.Resolver, awarder Awarder, quotes *QuoteBox, alerts view.Alerter) *Composer {
	return &Composer{
		store:    store,
		resolver: resolver,
		awarder:  awarder,
		quotes:   quotes,
		alerts:   alerts,
		log:      logx.Component("composer"),
	}
}

// Quotes returns the pending-quote state used for public messages.
func (c *Composer) Quotes() *QuoteBox {
	return c.quotes
}

func (c *Composer) alert(userID, message string) {
	if c.alerts != nil && userID != "" {
		c.alerts.Alert(userID, message)
	}
}

// SendPublic posts text to roomID as sender and returns the new message id.
//
// Blank text with no pending quote is rejected with ErrMessageEmpty before
// anything is read or written. The sender's rank and level are captured at
// send time and experience is awarded before the write; an award failure is
// logged and does not block the message. The pending quote is attached and
// cleared once the write succeeds; on failure it stays for a retry.
func (c *Composer) SendPublic(ctx context.Context, roomID, text string, sender user.User) (string, error) {
	text = strings.TrimSpace(text)
	target := RoomTarget(roomID)
	quote := c.quotes.Get(sender.ID, target)

	if text == "" && quote == nil {
		return "", errs.NewError(errs.ErrMessageEmpty)
	}

	if len(text) > MaxContentBytes {
		return "", errs.NewError(errs.ErrMessageContentTooLong, MaxContentBytes)
	}

	if !randx.IsValidIdentifier(roomID) {
		return "", errs.NewError(errs.ErrInvalidParams)
	}

	if sender.ID == "" || strings.TrimSpace(sender.Nickname) == "" {
		c.log.Warn().Str("room_id", roomID).Msg("Rejected public message without sender identity")
		c.alert(sender.ID, AlertSignIn)
		return "", errs.NewError(errs.ErrUnauthorized)
	}

	lookup := c.resolver.Resolve(ctx, []string{sender.ID})[sender.ID]

	if _, err := c.awarder.Award(ctx, sender.ID); err != nil {
		c.log.Warn().Err(err).Str("sender_id", sender.ID).Msg("Experience award failed, sending anyway")
	}

	fields := docstore.Fields{
		"user":       sender.Nickname,
		"senderId":   sender.ID,
		"avatar":     sender.Avatar,
		"text":       text,
		"type":       string(KindChat),
		"timestamp":  docstore.ServerTimestamp,
		"userNum":    PublicUserNum,
		"senderRank": lookup.Rank,
		"level":      lookup.Level,
	}
	if quote != nil {
		fields["quoted"] = quote.fields()
	}

	id, err := c.store.Add(ctx, RoomMessages(roomID), fields)
	if err != nil {
		metrics.WriteFailures.WithLabelValues("public_message").Inc()
		c.log.Error().Err(err).Str("room_id", roomID).Str("sender_id", sender.ID).Msg("Failed to persist public message")
		c.alert(sender.ID, AlertPublicSendFailed)
		return "", errs.Wrap(errs.ErrWriteFailure, err)
	}

	if quote != nil {
		c.quotes.ClearIf(sender.ID, target, *quote)
	}

	metrics.MessagesSent.WithLabelValues(string(KindChat)).Inc()
	c.log.Debug().Str("room_id", roomID).Str("message_id", id).Msg("Public message sent")
	return id, nil
}

// SendPrivate writes text from sender to receiverID and then merges the
// conversation summary. The two writes are independent: when the summary
// write fails the message stays, the failure is alerted and ErrWriteFailure
// is returned together with the message id.
func (c *Composer) SendPrivate(ctx context.Context, sender user.User, receiverID, text string, quoted *Quote) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.NewError(errs.ErrMessageEmpty)
	}

	if len(text) > MaxContentBytes {
		return "", errs.NewError(errs.ErrMessageContentTooLong, MaxContentBytes)
	}

	if sender.ID == "" {
		c.log.Warn().Str("receiver_id", receiverID).Msg("Rejected private message without sender identity")
		return "", errs.NewError(errs.ErrUnauthorized)
	}

	if !randx.IsValidIdentifier(receiverID) || receiverID == sender.ID {
		return "", errs.NewError(errs.ErrInvalidParams)
	}

	key := ConversationKey(sender.ID, receiverID)

	fields := docstore.Fields{
		"senderId":     sender.ID,
		"senderName":   sender.Nickname,
		"senderAvatar": sender.Avatar,
		"receiverId":   receiverID,
		"text":         text,
		"timestamp":    docstore.ServerTimestamp,
		"type":         string(KindPrivate),
	}
	if quoted != nil {
		fields["quoted"] = quoted.fields()
	}

	id, err := c.store.Add(ctx, PrivateMessages(key), fields)
	if err != nil {
		metrics.WriteFailures.WithLabelValues("private_message").Inc()
		c.log.Error().Err(err).Str("conversation", key).Msg("Failed to persist private message")
		c.alert(sender.ID, AlertPrivateSendFailed)
		return "", errs.Wrap(errs.ErrWriteFailure, err)
	}
	metrics.MessagesSent.WithLabelValues(string(KindPrivate)).Inc()

	summary := docstore.Fields{
		"senderId":             sender.ID,
		"receiverId":           receiverID,
		"lastMessageTimestamp": docstore.ServerTimestamp,
	}
	if err := c.store.Set(ctx, SummaryRef(key), summary, true); err != nil {
		metrics.WriteFailures.WithLabelValues("conversation_summary").Inc()
		c.log.Error().Err(err).
			Str("conversation", key).
			Str("message_id", id).
			Msg("Private message written but conversation summary update failed")
		c.alert(sender.ID, AlertSummaryWriteFailed)
		return id, errs.Wrap(errs.ErrWriteFailure, err)
	}

	return id, nil
}
