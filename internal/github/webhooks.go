package github

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"telegram-bridge/internal/metrics"
	"telegram-bridge/internal/secret"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/go-github/v80/github"
	"github.com/rs/zerolog"
)

type IssueCommenter interface {
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

// WebhookServer validates deliveries and runs their handlers in the
// background, outside the request's lifetime.
type WebhookServer struct {
	secret     []byte
	dispatcher *Dispatcher
	comments   IssueCommenter
	redactor   *secret.Redactor
	log        zerolog.Logger

	// base outlives individual requests; cancelled on shutdown.
	base context.Context
	wg   sync.WaitGroup
}

func NewWebhookServer(ctx context.Context, webhookSecret string, d *Dispatcher, comments IssueCommenter, redactor *secret.Redactor, log zerolog.Logger) *WebhookServer {
	return &WebhookServer{
		secret:     []byte(webhookSecret),
		dispatcher: d,
		comments:   comments,
		redactor:   redactor,
		log:        log.With().Str("component", "webhook").Logger(),
		base:       ctx,
	}
}

func (s *WebhookServer) Handler(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, s.secret)
	if err != nil {
		s.log.Warn().Err(err).Msg("webhook signature validation failed")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	del, err := ParseDelivery(github.DeliveryID(r), github.WebHookType(r), payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", github.WebHookType(r)).Msg("webhook parsing failed")
		http.Error(w, "Parse error", http.StatusBadRequest)
		return
	}

	if len(s.dispatcher.Handlers(del.Key())) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Process(s.base, del)
	}()
	w.WriteHeader(http.StatusAccepted)
}

// Process runs the handlers for del. Failures are logged and, when the
// delivery concerns an issue, reported there as a sanitized comment.
func (s *WebhookServer) Process(ctx context.Context, del *Delivery) (err error) {
	start := time.Now()
	log := s.log.With().Str("delivery", del.ID).Str("event", del.Key()).Logger()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		metrics.WebhookDuration.WithLabelValues(del.Key()).Observe(time.Since(start).Seconds())
		if err == nil {
			log.Info().Dur("took", time.Since(start)).Msg("delivery processed")
			return
		}
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("delivery failed")
		s.reportFailure(ctx, del, err)
	}()

	return s.dispatcher.Dispatch(ctx, del)
}

// Wait blocks until every background delivery has finished.
func (s *WebhookServer) Wait() {
	s.wg.Wait()
}

var failureTmpl = template.Must(template.New("failure").Parse(
	`<p><b>telegram-bridge</b> could not process <code>{{.Event}}</code> (delivery <code>{{.ID}}</code>).</p>` +
		`<pre>{{.Error}}</pre>`))

func (s *WebhookServer) reportFailure(ctx context.Context, del *Delivery, cause error) {
	if del.Issue == nil || s.comments == nil {
		return
	}
	body, err := FailureComment(del, cause, s.redactor)
	if err != nil {
		s.log.Warn().Err(err).Msg("failure comment not rendered")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.comments.CreateComment(ctx, del.Issue.Owner, del.Issue.Repo, del.Issue.Number, body); err != nil {
		s.log.Warn().Err(err).Msg("failure comment not posted")
	}
}

// FailureComment renders cause as Markdown with configured secrets removed.
func FailureComment(del *Delivery, cause error, redactor *secret.Redactor) (string, error) {
	var buf bytes.Buffer
	err := failureTmpl.Execute(&buf, struct{ Event, ID, Error string }{
		Event: del.Key(),
		ID:    del.ID,
		Error: redactor.Redact(cause.Error()),
	})
	if err != nil {
		return "", err
	}
	return htmltomarkdown.ConvertString(buf.String())
}
