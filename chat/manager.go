package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/inlined/internal/logx"
	"pkt.systems/inlined/schema"
	"pkt.systems/pslog"
)

// Wire methods carried inside the backend's JSON-RPC envelope.
const (
	MethodSendInlinePrompt = "chat/sendInlinePrompt"
	MethodSendCommand      = "chat/executeCommand"
	MethodProgress         = "$/progress"
)

// Transport is the backend channel. Request blocks until the backend
// responds or ctx is cancelled; Notify is fire-and-forget.
type Transport interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(method string, params any) error
}

// Cipher encrypts outbound payloads and decrypts backend responses.
type Cipher interface {
	Encrypt(v any) (string, error)
	Decrypt(s string) (string, error)
}

// ResultSink receives decrypted results and failures tagged with the
// conversation they belong to.
type ResultSink interface {
	OnResult(tab schema.TabID, result schema.ChatResult, partial bool)
	OnFailure(tab schema.TabID, err error)
}

// ManagerDeps captures the manager's collaborators.
type ManagerDeps struct {
	Transport  Transport
	Cipher     Cipher
	Correlator *PartialResultCorrelator
	Registry   *AsyncResultRegistry
	Sink       ResultSink
	Logger     pslog.Logger
}

// Manager routes prompts to the backend, encrypting payloads and
// correlating streamed progress back to the originating conversation.
// Exactly one prompt request is outstanding per conversation at a time;
// callers enforce this by blocking input while a request is in flight.
type Manager struct {
	cfg        schema.EngineConfig
	transport  Transport
	cipher     Cipher
	correlator *PartialResultCorrelator
	registry   *AsyncResultRegistry
	sink       ResultSink
	logger     pslog.Logger

	mu       sync.Mutex
	inflight map[schema.TabID]*inflightCall
}

type inflightCall struct {
	cancel context.CancelFunc
}

// NewManager constructs a communication manager.
func NewManager(cfg schema.EngineConfig, deps ManagerDeps) (*Manager, error) {
	normalized, err := schema.NormalizeEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Transport == nil {
		return nil, errors.New("transport is required")
	}
	if deps.Cipher == nil {
		return nil, errors.New("cipher is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("result sink is required")
	}
	if deps.Correlator == nil {
		deps.Correlator = NewPartialResultCorrelator()
	}
	if deps.Registry == nil {
		deps.Registry = NewAsyncResultRegistry(normalized.RequestTimeout)
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		cfg:        normalized,
		transport:  deps.Transport,
		cipher:     deps.Cipher,
		correlator: deps.Correlator,
		registry:   deps.Registry,
		sink:       deps.Sink,
		logger:     logger,
		inflight:   make(map[schema.TabID]*inflightCall),
	}, nil
}

// SendInlinePrompt encrypts the request, allocates a correlation token, and
// dispatches it. The call returns once the request is on the wire; the
// final decrypted result (or a failure) is delivered to the sink from a
// worker goroutine, after which the token is released.
func (m *Manager) SendInlinePrompt(ctx context.Context, tab schema.TabID, req schema.InlineChatRequest) error {
	token := schema.Token(uuid.NewString())
	m.correlator.Set(token, tab)

	encrypted, err := m.cipher.Encrypt(req)
	if err != nil {
		m.correlator.Remove(token)
		return fmt.Errorf("encrypt prompt: %w", err)
	}
	payload := schema.EncryptedRequest{Message: encrypted, PartialResultToken: token}

	reqCtx, cancel := context.WithCancel(ctx)
	call := &inflightCall{cancel: cancel}
	m.mu.Lock()
	if prev := m.inflight[tab]; prev != nil {
		prev.cancel()
	}
	m.inflight[tab] = call
	m.mu.Unlock()

	log := logx.WithTabToken(m.logger, tab, token)
	log.Debug("inline prompt dispatch", "prompt_len", len(req.Prompt.Prompt))

	go func() {
		defer m.correlator.Remove(token)
		defer m.clearInflight(tab, call)

		raw, err := m.transport.Request(reqCtx, MethodSendInlinePrompt, payload)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Debug("inline prompt cancelled")
				return
			}
			log.Warn("inline prompt send failed", "err", err)
			m.sink.OnFailure(tab, fmt.Errorf("%w: %v", schema.ErrTransport, err))
			return
		}
		result, err := m.decodeResult(raw)
		if err != nil {
			log.Warn("inline prompt decode failed", "err", err)
			m.sink.OnFailure(tab, err)
			return
		}
		m.sink.OnResult(tab, result, false)
	}()
	return nil
}

// HandleProgress demultiplexes one streamed progress notification. Unknown
// tokens are dropped silently: the session they belonged to has ended.
func (m *Manager) HandleProgress(note schema.ProgressNotification) {
	tab, ok := m.correlator.Get(note.Token)
	if !ok {
		m.logger.Debug("progress for unknown token dropped", "token", note.Token)
		return
	}
	log := logx.WithTabToken(m.logger, tab, note.Token)

	plain, err := m.cipher.Decrypt(note.Value)
	if err != nil {
		log.Warn("progress decrypt failed", "err", err)
		m.sink.OnFailure(tab, fmt.Errorf("%w: %v", schema.ErrDecrypt, err))
		return
	}
	var result schema.ChatResult
	if err := json.Unmarshal([]byte(plain), &result); err != nil {
		log.Warn("progress payload malformed", "err", err)
		m.sink.OnFailure(tab, fmt.Errorf("%w: %v", schema.ErrDecrypt, err))
		return
	}
	m.sink.OnResult(tab, result, note.Partial)
}

// RoundTrip dispatches a non-streaming request and waits for its result
// with the configured default timeout. A timeout cancels the underlying
// transport call through the registry's cancellation hook.
func (m *Manager) RoundTrip(ctx context.Context, id schema.RequestID, method string, params any) (any, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.registry.RegisterCancel(id, cancel)

	log := logx.WithRequest(m.logger, id)
	log.Debug("round trip dispatch", "method", method)

	go func() {
		raw, err := m.transport.Request(reqCtx, method, params)
		if err != nil {
			m.registry.Complete(id, err)
			return
		}
		m.registry.Complete(id, raw)
	}()

	value, err := m.registry.Await(id, 0)
	if err != nil {
		log.Debug("round trip failed", "err", err)
		return nil, err
	}
	if failure, ok := value.(error); ok {
		return nil, fmt.Errorf("%w: %v", schema.ErrTransport, failure)
	}
	return value, nil
}

// CompleteRoundTrip resolves a pending slot for requests the host answers
// itself rather than the transport.
func (m *Manager) CompleteRoundTrip(id schema.RequestID, value any) {
	m.registry.Complete(id, value)
}

// CancelInflight aborts the outstanding prompt request for a conversation,
// if any. A late response for the cancelled request is dropped.
func (m *Manager) CancelInflight(tab schema.TabID) {
	m.mu.Lock()
	call := m.inflight[tab]
	delete(m.inflight, tab)
	m.mu.Unlock()
	if call != nil {
		call.cancel()
	}
}

func (m *Manager) clearInflight(tab schema.TabID, call *inflightCall) {
	m.mu.Lock()
	if m.inflight[tab] == call {
		delete(m.inflight, tab)
	}
	m.mu.Unlock()
	call.cancel()
}

// decodeResult unwraps and decrypts the backend's response envelope.
func (m *Manager) decodeResult(raw json.RawMessage) (schema.ChatResult, error) {
	var encrypted string
	if err := json.Unmarshal(raw, &encrypted); err != nil {
		return schema.ChatResult{}, fmt.Errorf("%w: %v", schema.ErrDecrypt, err)
	}
	plain, err := m.cipher.Decrypt(encrypted)
	if err != nil {
		return schema.ChatResult{}, fmt.Errorf("%w: %v", schema.ErrDecrypt, err)
	}
	var result schema.ChatResult
	if err := json.Unmarshal([]byte(plain), &result); err != nil {
		return schema.ChatResult{}, fmt.Errorf("%w: %v", schema.ErrDecrypt, err)
	}
	return result, nil
}

// DefaultTimeout exposes the configured round-trip timeout.
func (m *Manager) DefaultTimeout() time.Duration {
	return m.cfg.RequestTimeout
}
