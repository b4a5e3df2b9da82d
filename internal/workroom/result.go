package workroom

import "net/http"

type Reason string

const (
	ReasonChatCreated      Reason = "chat_created"
	ReasonChatExists       Reason = "chat_exists"
	ReasonChatCreateFailed Reason = "chat_create_failed"
	ReasonChatClosed       Reason = "chat_closed"
	ReasonAlreadyClosed    Reason = "chat_already_closed"
	ReasonChatCloseFailed  Reason = "chat_close_failed"
	ReasonChatReopened     Reason = "chat_reopened"
	ReasonChatReopenFailed Reason = "chat_reopen_failed"
	ReasonChatNotFound     Reason = "chat_not_found"
	ReasonInvalidStatus    Reason = "invalid_status"
	ReasonChatBusy         Reason = "chat_busy"
)

// Result is what every transition returns instead of an error.
type Result struct {
	Status int
	Reason Reason
	ChatID int64
	Err    error
}

func (r Result) OK() bool { return r.Status < http.StatusBadRequest }

func ok(reason Reason, chatID int64) Result {
	return Result{Status: http.StatusOK, Reason: reason, ChatID: chatID}
}

func failed(status int, reason Reason, chatID int64, err error) Result {
	return Result{Status: status, Reason: reason, ChatID: chatID, Err: err}
}
