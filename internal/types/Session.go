package types

import "fmt"

// SessionState is the wallet session lifecycle.
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionConnecting
	SessionConnected
	SessionDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionUninitialized:
		return "uninitialized"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionView is the read-only copy of session state handed to presentation consumers.
// Metadata and UserData are nil whenever the session is not connected.
type SessionView struct {
	State      SessionState   `json:"state"`
	Account    string         `json:"account,omitempty"`
	ChainID    uint64         `json:"chain_id,omitempty"`
	Connected  bool           `json:"is_connected"`
	Connecting bool           `json:"is_connecting"`
	Metadata   *VaultMetadata `json:"vault_metadata"`
	UserData   *UserVaultData `json:"user_data"`
}
