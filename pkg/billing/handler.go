package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBody bounds webhook payload size. Provider payloads are a few
// kilobytes; anything near this limit is not a billing event.
const maxWebhookBody = 1 << 20

// signatureHeaders lists the header names known billing providers use to
// carry the webhook signature. The first non-empty one wins.
var signatureHeaders = []string{"Stripe-Signature", "Paddle-Signature"}

// WebhookHandler receives billing provider webhooks, verifies their
// signature and feeds them to the Reconciler.
//
// Response codes follow provider retry semantics: 2xx acknowledges the
// delivery (including deliberately ignored and rejected events, which a
// retry cannot fix), 400 refuses an unverifiable payload, and 5xx asks the
// provider to redeliver after a storage failure.
type WebhookHandler struct {
	provider   Provider
	reconciler *Reconciler
	log        *slog.Logger
}

// WebhookHandlerOption configures a WebhookHandler.
type WebhookHandlerOption func(*WebhookHandler)

// WithHandlerLogger sets the handler's logger. Defaults to slog.Default().
func WithHandlerLogger(log *slog.Logger) WebhookHandlerOption {
	return func(h *WebhookHandler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewWebhookHandler creates a webhook handler. Panics on nil dependencies
// to fail fast during initialization.
func NewWebhookHandler(provider Provider, reconciler *Reconciler, opts ...WebhookHandlerOption) *WebhookHandler {
	if provider == nil {
		panic("billing: provider is required")
	}
	if reconciler == nil {
		panic("billing: reconciler is required")
	}
	h := &WebhookHandler{
		provider:   provider,
		reconciler: reconciler,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle returns the handler's router, mountable under any prefix:
//
//	r.Mount("/billing", handler.Handle())
func (h *WebhookHandler) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook", h.handleWebhook)
	return r
}

func (h *WebhookHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.log.ErrorContext(ctx, "failed to read webhook body", slog.Any("error", err))
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := h.provider.VerifyWebhook(payload, signature(r)); err != nil {
		h.log.WarnContext(ctx, "webhook signature verification failed", slog.Any("error", err))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if err := h.reconciler.ApplyPayload(ctx, payload); err != nil {
		if errors.Is(err, ErrEventRejected) {
			// Redelivery would be rejected again; acknowledge and move on.
			h.log.WarnContext(ctx, "billing event rejected", slog.Any("error", err))
			w.WriteHeader(http.StatusOK)
			return
		}
		h.log.ErrorContext(ctx, "failed to apply billing event", slog.Any("error", err))
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func signature(r *http.Request) string {
	for _, name := range signatureHeaders {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}
