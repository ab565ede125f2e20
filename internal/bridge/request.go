package bridge

import (
	"github.com/danmuck/signalctl/internal/config"
	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/terminal"
	"github.com/google/uuid"
)

type RequestType int

const (
	OutgoingTransaction RequestType = iota + 1
	ReverseTransaction
	Connect
	Disconnect
	Reconnect
	GetConnection
	GetTransaction
	GetTransactions
	GetSpec
	UpdateSpec
	GetConfig
	UpdateConfig
)

// RequestTypes lists every declared request type.
func RequestTypes() []RequestType {
	return []RequestType{
		OutgoingTransaction,
		ReverseTransaction,
		Connect,
		Disconnect,
		Reconnect,
		GetConnection,
		GetTransaction,
		GetTransactions,
		GetSpec,
		UpdateSpec,
		GetConfig,
		UpdateConfig,
	}
}

func (t RequestType) String() string {
	switch t {
	case OutgoingTransaction:
		return "outgoing_transaction"
	case ReverseTransaction:
		return "reverse_transaction"
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	case Reconnect:
		return "reconnect"
	case GetConnection:
		return "get_connection"
	case GetTransaction:
		return "get_transaction"
	case GetTransactions:
		return "get_transactions"
	case GetSpec:
		return "get_spec"
	case UpdateSpec:
		return "update_spec"
	case GetConfig:
		return "get_config"
	case UpdateConfig:
		return "update_config"
	default:
		return "unknown"
	}
}

// changesConnection reports types that hold the connection-operation slot.
func (t RequestType) changesConnection() bool {
	return t == Connect || t == Disconnect || t == Reconnect
}

// Request is one API call travelling to the terminal loop and back.
type Request struct {
	ID   uuid.UUID
	Type RequestType

	Transaction   *iso.Transaction
	TransactionID string
	Connection    *terminal.Connection
	Spec          *iso.Spec
	Config        *config.Config

	Status   int
	Error    string
	Response any
}

func (r Request) Failed() bool {
	return r.Status >= 400
}
