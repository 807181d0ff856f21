package wallet

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"

	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// Session tracks the connection to the user's signing agent for the lifetime
// of the process. State is refreshed only on Initialize and Connect; there is
// no background polling, so an account revoked at the agent is noticed on the
// next write attempt, not before.
type Session struct {
	provider Provider
	logger   cmtlog.Logger

	mu        sync.RWMutex
	account   string
	connected bool
}

func NewSession(provider Provider, logger cmtlog.Logger) *Session {
	return &Session{provider: provider, logger: logger}
}

// Initialize attempts silent account discovery, the eth_accounts call that
// never prompts. An empty grant is not an error: the session simply stays
// disconnected.
func (s *Session) Initialize(ctx context.Context) error {
	var accounts []string
	if err := s.provider.Request(ctx, "eth_accounts", nil, &accounts); err != nil {
		return err
	}
	if len(accounts) == 0 {
		s.logger.Info("No wallet account granted, session disconnected")
		return nil
	}
	s.setAccount(accounts[0])
	s.logger.Info("Wallet session restored", "account", accounts[0])
	return nil
}

// Connect prompts the user through the signing agent and adopts the first
// granted address. It suspends for as long as the prompt is open.
func (s *Session) Connect(ctx context.Context) (string, error) {
	var accounts []string
	if err := s.provider.Request(ctx, "eth_requestAccounts", nil, &accounts); err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", ErrUserRejected
	}
	s.setAccount(accounts[0])
	s.logger.Info("Wallet connected", "account", accounts[0])
	return accounts[0], nil
}

// CurrentAccount returns the last known account without blocking.
func (s *Session) CurrentAccount() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.connected
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Address implements ledger.Signer.
func (s *Session) Address() (string, bool) {
	return s.CurrentAccount()
}

// Sign asks the signing agent to sign data on behalf of from. A decline
// surfaces as ErrUserRejected before anything is broadcast.
func (s *Session) Sign(ctx context.Context, from string, data []byte) ([]byte, error) {
	params := map[string]interface{}{
		"from": from,
		"data": "0x" + hex.EncodeToString(data),
	}
	var signature string
	if err := s.provider.Request(ctx, "personal_sign", params, &signature); err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimPrefix(signature, "0x"))
}

func (s *Session) setAccount(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account
	s.connected = true
}
