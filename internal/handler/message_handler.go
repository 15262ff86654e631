/*
Package handler provides HTTP handler functions for sending messages, managing
pending quotes and listing private contacts.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"livechat/internal/app/chat"
	"livechat/internal/pkg/errs"
	"livechat/internal/pkg/randx"
	"livechat/internal/pkg/req"
	"livechat/internal/pkg/resp"
)

// SendMessageInput is the body of a send request.
type SendMessageInput struct {
	Text string `json:"text"`

	// Quoted is attached to private messages; public messages use the pending quote.
	Quoted *chat.Quote `json:"quoted,omitempty"`
}

// QuoteInput is the body of a set-quote request.
type QuoteInput struct {
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

// HandleSendPublic posts a message to the room in the path.
func HandleSendPublic(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SendMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		id, err := deps.Composer.SendPublic(r.Context(), chi.URLParam(r, "roomID"), input.Text, sessionUser(r))
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]string{"id": id})
	}
}

// HandleSendPrivate sends a private message to the peer in the path. When
// the message is stored but the conversation summary is not, the error
// response still carries the message id.
func HandleSendPrivate(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input SendMessageInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		id, err := deps.Composer.SendPrivate(r.Context(), sessionUser(r), chi.URLParam(r, "peerID"), input.Text, input.Quoted)
		if err != nil {
			customErr := errs.From(err)
			if id == "" {
				resp.RespondError(w, r, customErr)
				return
			}
			resp.RespondErrorData(w, r, customErr, map[string]string{"id": id})
			return
		}

		resp.RespondSuccess(w, r, map[string]string{"id": id})
	}
}

// HandleSetQuote sets the caller's pending quote for the room in the path.
func HandleSetQuote(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if !randx.IsValidIdentifier(roomID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input QuoteInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Content == "" || len(input.Content) > chat.MaxContentBytes {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		q := chat.Quote{SenderName: input.SenderName, Content: input.Content}
		deps.Composer.Quotes().Set(sessionUser(r).ID, chat.RoomTarget(roomID), q)

		resp.RespondSuccess(w, r, q)
	}
}

// HandleClearQuote drops the caller's pending quote for the room in the path.
func HandleClearQuote(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Composer.Quotes().Clear(sessionUser(r).ID, chat.RoomTarget(chi.URLParam(r, "roomID")))
		resp.RespondSuccess(w, r, nil)
	}
}

// HandleContacts lists the caller's private conversation partners.
func HandleContacts(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contacts, err := deps.Contacts.Contacts(r.Context(), sessionUser(r).ID)
		if err != nil {
			resp.RespondError(w, r, errs.From(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"contacts": contacts})
	}
}
