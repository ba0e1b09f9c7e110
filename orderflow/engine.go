package orderflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Engine is the conversational form engine. It owns the session store,
// walks users through the order-collection steps one message at a time and
// routes everything else to the free-form responder.
//
// All processing for one session id is serialized through a per-session
// lock, so two near-simultaneous messages from the same user are applied in
// the order their Handle calls acquire the lock. Different sessions proceed
// concurrently.
type Engine struct {
	cfg       *Config
	logger    *slog.Logger
	steps     []StepSpec
	sessions  SessionStore
	orders    OrderStore
	users     UserNotifier
	admin     AdminNotifier
	responder Responder
	priceList string

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes handling for one session id. refs counts waiters so
// the engine can drop the map entry once nobody holds or wants the lock;
// without that the map would grow by one entry per sender forever.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewEngine builds the engine from a validated config and its collaborators.
// Admin notifier and responder may be nil: completions are then logged only,
// and free-form input gets the configured fallback reply.
func NewEngine(cfg *Config, logger *slog.Logger, sessions SessionStore, orders OrderStore,
	users UserNotifier, admin AdminNotifier, responder Responder) (*Engine, error) {

	if sessions == nil || orders == nil || users == nil {
		return nil, fmt.Errorf("engine requires session store, order store and user notifier")
	}

	steps, err := buildSteps(cfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		steps:     steps,
		sessions:  sessions,
		orders:    orders,
		users:     users,
		admin:     admin,
		responder: responder,
		priceList: RenderPriceList(cfg.PriceListHeader, cfg.Products),
		locks:     make(map[string]*sessionLock),
	}, nil
}

// Handle processes one inbound user message. Validation failures never
// surface as errors; a returned error means an internal fault (store or
// collaborator breakage) and the caller should send the user a generic
// try-again message.
func (e *Engine) Handle(ctx context.Context, sessionID, text string) error {
	lock := e.acquireLock(sessionID)
	defer e.releaseLock(sessionID, lock)

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	if sess == nil {
		return e.handleIdle(ctx, sessionID, text)
	}

	if matchesAny(e.cfg.CancelPhrases, text) {
		return e.cancel(ctx, sess)
	}

	if sess.Step < 0 || sess.Step >= len(e.steps) {
		// Defensive: a step outside the sequence is fatal to this session
		// only. Drop it and ask the user to restart.
		e.logger.Error("corrupted session state, resetting",
			"session_id", sessionID, "step", sess.Step, "error", ErrSessionCorrupted)
		if err := e.sessions.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("resetting corrupted session %s: %w", sessionID, err)
		}
		e.notifyUser(ctx, sessionID, e.cfg.Prompts.Restart)
		return nil
	}

	return e.advance(ctx, sess, text)
}

// handleIdle routes a message from a user with no active session: an order
// trigger starts the flow, a price keyword answers from the configured price
// list, anything else goes to the free-form responder.
func (e *Engine) handleIdle(ctx context.Context, sessionID, text string) error {
	if matchesAny(e.cfg.TriggerPhrases, text) {
		sess := NewSession(sessionID)
		if err := e.sessions.Put(ctx, sess); err != nil {
			return fmt.Errorf("creating session %s: %w", sessionID, err)
		}
		e.logger.Info("order flow started", "session_id", sessionID)
		e.notifyUser(ctx, sessionID, e.steps[0].Prompt(sess))
		return nil
	}

	if e.priceList != "" && matchesAny(e.cfg.PriceKeywords, text) {
		e.notifyUser(ctx, sessionID, e.priceList)
		return nil
	}

	e.notifyUser(ctx, sessionID, e.freeFormReply(ctx, sessionID, text))
	return nil
}

// freeFormReply asks the responder for a reply, substituting the configured
// fallback on any failure. The failure is logged, never shown to the user.
func (e *Engine) freeFormReply(ctx context.Context, sessionID, text string) string {
	if e.responder == nil {
		return e.cfg.FallbackReply
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ResponderTimeout)
	defer cancel()

	reply, err := e.responder.Respond(ctx, text)
	if err != nil {
		e.logger.Warn("responder unavailable, using fallback",
			"session_id", sessionID, "error", err)
		return e.cfg.FallbackReply
	}
	return reply
}

// cancel ends the session without producing an order.
func (e *Engine) cancel(ctx context.Context, sess *Session) error {
	if err := e.sessions.Delete(ctx, sess.SessionID); err != nil {
		return fmt.Errorf("cancelling session %s: %w", sess.SessionID, err)
	}
	e.logger.Info("order flow cancelled", "session_id", sess.SessionID, "step", sess.Step)
	e.notifyUser(ctx, sess.SessionID, e.cfg.Prompts.Cancelled)
	return nil
}

// advance validates the input against the current step and either stores the
// value and moves forward or re-prompts. Rejected input mutates nothing.
func (e *Engine) advance(ctx context.Context, sess *Session, text string) error {
	step := e.steps[sess.Step]

	value, ok := step.Validate(text, sess)
	if !ok {
		e.logger.Debug("step input rejected",
			"session_id", sess.SessionID, "field", step.Field)
		e.notifyUser(ctx, sess.SessionID, step.Invalid(sess))
		return nil
	}

	sess.Fields[step.Field] = value
	sess.Step++

	if sess.Step == len(e.steps) {
		return e.finalize(ctx, sess)
	}

	if err := e.sessions.Put(ctx, sess); err != nil {
		return fmt.Errorf("saving session %s: %w", sess.SessionID, err)
	}
	e.notifyUser(ctx, sess.SessionID, e.steps[sess.Step].Prompt(sess))
	return nil
}

// finalize assembles the order record, appends it to the store, notifies the
// operator and the customer exactly once each, and deletes the session.
// Notification failures do not undo the append or keep the session alive.
func (e *Engine) finalize(ctx context.Context, sess *Session) error {
	quantity, err := strconv.Atoi(sess.Fields[FieldQuantity])
	if err != nil {
		// Fields only ever hold validated values, so this is corruption.
		e.logger.Error("corrupted quantity field, resetting session",
			"session_id", sess.SessionID, "error", err)
		if err := e.sessions.Delete(ctx, sess.SessionID); err != nil {
			return fmt.Errorf("resetting corrupted session %s: %w", sess.SessionID, err)
		}
		e.notifyUser(ctx, sess.SessionID, e.cfg.Prompts.Restart)
		return nil
	}

	ord := Order{
		Timestamp:      time.Now().Format(time.RFC3339),
		SessionID:      sess.SessionID,
		Quantity:       quantity,
		Phone:          sess.Fields[FieldPhone],
		DeliveryMethod: sess.Fields[FieldDeliveryMethod],
		DeliveryDetail: sess.Fields[FieldDeliveryDetail],
		Status:         StatusNew,
	}

	orderID, err := e.orders.Append(ctx, &ord)
	if err != nil {
		// Session stays at the last step; the user can resend the detail.
		return fmt.Errorf("storing order for session %s: %w", sess.SessionID, err)
	}
	e.logger.Info("order finalized",
		"session_id", sess.SessionID, "order_id", orderID, "quantity", ord.Quantity)

	if e.admin != nil {
		if err := e.admin.NotifyAdmin(ctx, ord); err != nil {
			e.logger.Warn("admin notification failed",
				"order_id", orderID, "error", err)
		}
	}

	e.notifyUser(ctx, sess.SessionID, e.orderSummary(ord))

	if err := e.sessions.Delete(ctx, sess.SessionID); err != nil {
		e.logger.Error("deleting completed session failed",
			"session_id", sess.SessionID, "error", err)
	}
	return nil
}

// orderSummary builds the customer-facing confirmation message.
func (e *Engine) orderSummary(ord Order) string {
	return fmt.Sprintf(
		"Замовлення №%d прийнято!\nКількість: %d\nТелефон: %s\nДоставка: %s, %s\nДякуємо за замовлення! Ми зв'яжемося з вами найближчим часом.",
		ord.OrderID, ord.Quantity, ord.Phone, ord.DeliveryMethod, ord.DeliveryDetail)
}

// notifyUser sends one message to the user, logging delivery failures.
// Notifier failures never abort the step transition that caused them.
func (e *Engine) notifyUser(ctx context.Context, sessionID, text string) {
	if err := e.users.NotifyUser(ctx, sessionID, text); err != nil {
		e.logger.Warn("user notification failed",
			"session_id", sessionID, "error", err)
	}
}

// acquireLock takes the lock serializing work for one session id, creating
// the entry on first use.
func (e *Engine) acquireLock(id string) *sessionLock {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sessionLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return l
}

// releaseLock releases the session lock and drops the map entry once no
// other Handle call holds or waits for it.
func (e *Engine) releaseLock(id string, l *sessionLock) {
	l.mu.Unlock()

	e.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, id)
	}
	e.mu.Unlock()
}
