package api

import (
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/hail/webhook"
)

// inboundWebhook is the provider-facing mount. Signature verification
// runs before any business logic; an unsigned or tampered envelope is
// rejected with a fixed 401 and never processed. Everything past the
// gate answers HTTP 200 with a textual reply — the provider treats
// non-2xx as a delivery failure and retries, which would double-fire
// driver commands.
func (a *API) inboundWebhook(ctx forge.Context, req *InboundMessage) (*WebhookReply, error) {
	if len(a.secret) == 0 {
		return nil, ctx.Status(http.StatusUnauthorized).JSON(ErrorResponse{Error: "webhook not configured"})
	}
	if !webhook.Verify(a.secret, signingBytes(req), ctx.Header(webhook.SignatureHeader)) {
		return nil, ctx.Status(http.StatusUnauthorized).JSON(ErrorResponse{Error: "invalid signature"})
	}

	env := &webhook.Envelope{
		MessageID:  req.MessageID,
		Sender:     req.From,
		Body:       req.Body,
		Channel:    req.Channel,
		ReceivedAt: time.Now().UTC(),
	}

	reply, err := a.eng.WebhookHandler().Handle(ctx.Context(), env)
	if err != nil || reply == nil {
		// The processor maps every business outcome to a reply; an
		// error here is infrastructure trouble. Still 200 with a
		// retry prompt so the provider does not redeliver forever.
		resp := &WebhookReply{Text: "Something went wrong, please try again."}
		return resp, ctx.JSON(http.StatusOK, resp)
	}

	resp := &WebhookReply{Text: reply.Text}
	return resp, ctx.JSON(http.StatusOK, resp)
}

// signingBytes builds the canonical byte string the provider signs:
// message ID, sender, and body joined by newlines.
func signingBytes(m *InboundMessage) []byte {
	return []byte(m.MessageID + "\n" + m.From + "\n" + m.Body)
}
