package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// WebSocket Wallet Monitor: real-time swap detection for tracked wallets
// via logsSubscribe with a mentions filter per wallet
// ---------------------------------------------------------------------------

// WSMonitorConfig configures the WebSocket wallet monitor.
type WSMonitorConfig struct {
	WSEndpoint       string `yaml:"ws_endpoint"`
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	MaxReconnects    int    `yaml:"max_reconnects"`
}

// DefaultWSMonitorConfig returns defaults for mainnet monitoring.
func DefaultWSMonitorConfig() WSMonitorConfig {
	return WSMonitorConfig{
		WSEndpoint:       "wss://api.mainnet-beta.solana.com",
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0, // 0 = unlimited reconnects
	}
}

// SwapLogEvent is emitted when a watched wallet signs a transaction whose
// logs touch a known DEX program.
type SwapLogEvent struct {
	Wallet     Pubkey    `json:"wallet"`
	Signature  Signature `json:"signature"`
	Slot       uint64    `json:"slot"`
	DEX        string    `json:"dex"`
	Logs       []string  `json:"logs"`
	DetectedAt time.Time `json:"detected_at"`
}

// WSMonitor streams swap log events for a dynamic set of wallets.
type WSMonitor struct {
	config WSMonitorConfig

	mu      sync.RWMutex
	conn    *websocket.Conn
	wallets map[Pubkey]struct{}
	pending map[int64]Pubkey // request ID -> wallet
	subs    map[int64]Pubkey // subscription ID -> wallet

	// Output channel for detected swaps.
	events chan SwapLogEvent
	closed atomic.Bool

	nextReqID atomic.Int64

	// Stats.
	messagesRecv  atomic.Int64
	swapsDetected atomic.Int64
	reconnects    atomic.Int64
	connected     atomic.Bool
}

// NewWSMonitor creates a new WebSocket wallet monitor.
func NewWSMonitor(config WSMonitorConfig) *WSMonitor {
	return &WSMonitor{
		config:  config,
		wallets: make(map[Pubkey]struct{}),
		pending: make(map[int64]Pubkey),
		subs:    make(map[int64]Pubkey),
		events:  make(chan SwapLogEvent, 256),
	}
}

// Watch adds a wallet to the subscription set, subscribing immediately when
// connected.
func (m *WSMonitor) Watch(wallet Pubkey) {
	m.mu.Lock()
	_, exists := m.wallets[wallet]
	m.wallets[wallet] = struct{}{}
	connected := m.conn != nil
	m.mu.Unlock()

	if !exists && connected {
		if err := m.subscribe(wallet); err != nil {
			log.Warn().Err(err).Str("wallet", wallet.Short()).Msg("ws: subscribe failed")
		}
	}
}

// Start connects to the WebSocket and starts monitoring. The returned
// channel is closed when ctx is cancelled.
func (m *WSMonitor) Start(ctx context.Context) <-chan SwapLogEvent {
	go m.runLoop(ctx)
	return m.events
}

func (m *WSMonitor) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("ws: runLoop panic recovered")
		}
		// Acquire write lock to synchronize with handleMessage's channel send.
		m.mu.Lock()
		if m.closed.CompareAndSwap(false, true) {
			close(m.events)
		}
		m.mu.Unlock()
	}()

	baseDelay := time.Duration(m.config.ReconnectDelayMs) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	reconnectDelay := baseDelay
	reconnectCount := 0
	const maxDelay = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			m.disconnect()
			return
		default:
		}

		// Unlimited reconnects when MaxReconnects == 0.
		if m.config.MaxReconnects > 0 && reconnectCount >= m.config.MaxReconnects {
			log.Error().Int("max", m.config.MaxReconnects).Msg("ws: max reconnects reached, restarting counter after cooldown")
			select {
			case <-time.After(60 * time.Second):
				reconnectCount = 0
				continue
			case <-ctx.Done():
				m.disconnect()
				return
			}
		}

		if err := m.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("ws: connection failed")
			reconnectCount++
			m.reconnects.Add(1)

			select {
			case <-time.After(reconnectDelay):
				reconnectDelay *= 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = baseDelay

		m.mu.RLock()
		wallets := make([]Pubkey, 0, len(m.wallets))
		for w := range m.wallets {
			wallets = append(wallets, w)
		}
		m.mu.RUnlock()

		for _, w := range wallets {
			if err := m.subscribe(w); err != nil {
				log.Warn().Err(err).Str("wallet", w.Short()).Msg("ws: subscribe failed")
			}
		}

		// Read messages until disconnect.
		m.readLoop(ctx)
		m.disconnect()
	}
}

func (m *WSMonitor) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, m.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("ws: dial: %w", err)
	}

	m.mu.Lock()
	m.conn = conn
	m.pending = make(map[int64]Pubkey)
	m.subs = make(map[int64]Pubkey)
	m.mu.Unlock()
	m.connected.Store(true)

	log.Info().Str("endpoint", m.config.WSEndpoint).Msg("ws: connected")
	return nil
}

func (m *WSMonitor) disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected.Store(false)
}

// subscribe sends a logsSubscribe request mentioning one wallet.
func (m *WSMonitor) subscribe(wallet Pubkey) error {
	reqID := m.nextReqID.Add(1)
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{"mentions": []string{string(wallet)}},
			map[string]any{"commitment": "confirmed"},
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return fmt.Errorf("ws: not connected")
	}
	m.pending[reqID] = wallet
	if err := m.conn.WriteJSON(req); err != nil {
		delete(m.pending, reqID)
		return fmt.Errorf("ws: write subscribe: %w", err)
	}

	log.Debug().Str("wallet", wallet.Short()).Msg("ws: subscribed to wallet logs")
	return nil
}

func (m *WSMonitor) readLoop(ctx context.Context) {
	pingInterval := time.Duration(m.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	lastPing := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()
		if conn == nil {
			return
		}

		if time.Since(lastPing) >= pingInterval {
			m.mu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.mu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("ws: ping failed")
				return
			}
			lastPing = time.Now()
		}

		conn.SetReadDeadline(time.Now().Add(pingInterval + 30*time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("ws: connection closed normally")
			} else if ctx.Err() == nil {
				log.Warn().Err(err).Msg("ws: read error, reconnecting")
			}
			m.connected.Store(false)
			return
		}

		m.messagesRecv.Add(1)
		m.handleMessage(message)
	}
}

func (m *WSMonitor) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("ws: handleMessage panic recovered")
		}
	}()

	var msg struct {
		ID     *int64          `json:"id"`
		Result json.RawMessage `json:"result"`
		Method string          `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Signature string          `json:"signature"`
					Err       json.RawMessage `json:"err"`
					Logs      []string        `json:"logs"`
				} `json:"value"`
				Context struct {
					Slot uint64 `json:"slot"`
				} `json:"context"`
			} `json:"result"`
			Subscription int64 `json:"subscription"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	// Subscription confirmation: {"id": reqID, "result": subID}.
	if msg.ID != nil && msg.Method == "" {
		var subID int64
		if json.Unmarshal(msg.Result, &subID) != nil {
			return
		}
		m.mu.Lock()
		if wallet, ok := m.pending[*msg.ID]; ok {
			m.subs[subID] = wallet
			delete(m.pending, *msg.ID)
		}
		m.mu.Unlock()
		log.Debug().Int64("sub_id", subID).Msg("ws: subscription confirmed")
		return
	}

	if msg.Method != "logsNotification" {
		return
	}

	value := msg.Params.Result.Value
	if len(value.Err) > 0 && string(value.Err) != "null" {
		return // failed transactions move no funds
	}
	dex := detectDEXFromLogs(value.Logs)
	if dex == "" || !isSwapEvent(value.Logs) {
		return
	}

	m.mu.RLock()
	wallet, ok := m.subs[msg.Params.Subscription]
	m.mu.RUnlock()
	if !ok {
		return
	}

	event := SwapLogEvent{
		Wallet:     wallet,
		Signature:  Signature(value.Signature),
		Slot:       msg.Params.Result.Context.Slot,
		DEX:        dex,
		Logs:       value.Logs,
		DetectedAt: time.Now(),
	}
	m.swapsDetected.Add(1)

	// Synchronize channel send with close using mutex to prevent
	// send-on-closed-channel panic (atomic check alone is racy).
	m.mu.RLock()
	if !m.closed.Load() {
		select {
		case m.events <- event:
		default:
			log.Warn().Msg("ws: swap channel full, dropping event")
		}
	}
	m.mu.RUnlock()
}

// Known DEX program IDs on Solana mainnet.
var dexPrograms = map[string]string{
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "raydium",
	"CPMMoo8L3F4NbTegBCKVNunggL7H1ZpdTHKxQB5qKP1C": "raydium-cpmm",
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "pumpfun",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "orca",
	"LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo":  "meteora",
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "jupiter",
}

// detectDEXFromLogs returns the first known DEX invoked, or "".
func detectDEXFromLogs(logs []string) string {
	for _, l := range logs {
		if !strings.HasPrefix(l, "Program ") || !strings.Contains(l, " invoke") {
			continue
		}
		fields := strings.Fields(l)
		if len(fields) < 2 {
			continue
		}
		if dex, ok := dexPrograms[fields[1]]; ok {
			return dex
		}
	}
	return ""
}

// isSwapEvent checks logs for swap instruction markers.
func isSwapEvent(logs []string) bool {
	for _, l := range logs {
		if strings.Contains(l, "Instruction: Swap") ||
			strings.Contains(l, "Instruction: Buy") ||
			strings.Contains(l, "Instruction: Sell") ||
			strings.Contains(l, "Instruction: Route") ||
			strings.Contains(l, "ray_log") {
			return true
		}
	}
	return false
}

// WSStats returns monitor statistics.
type WSStats struct {
	Connected     bool  `json:"connected"`
	Wallets       int   `json:"wallets"`
	Subscriptions int   `json:"subscriptions"`
	MessagesRecv  int64 `json:"messages_recv"`
	SwapsDetected int64 `json:"swaps_detected"`
	Reconnects    int64 `json:"reconnects"`
}

func (m *WSMonitor) Stats() WSStats {
	m.mu.RLock()
	wallets, subs := len(m.wallets), len(m.subs)
	m.mu.RUnlock()
	return WSStats{
		Connected:     m.connected.Load(),
		Wallets:       wallets,
		Subscriptions: subs,
		MessagesRecv:  m.messagesRecv.Load(),
		SwapsDetected: m.swapsDetected.Load(),
		Reconnects:    m.reconnects.Load(),
	}
}
