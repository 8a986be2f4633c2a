/*
	Copyright (c) 2022 R. van Twisk
	Copyright (c) 2024 The nmearouter Authors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	status.go: endpoint status announcements and how partial updates merge.
*/

package endpoint

const (
	CONTENT_KIND      = 0b00000001 // When set, Status has a valid Kind
	CONTENT_CONNECTED = 0b00000010 // When set, Status has a valid connected state
	CONTENT_CLIENTS   = 0b00000100 // When set, Status has a valid client count
	CONTENT_ADDRESS   = 0b00001000 // When set, Status has a valid address
	CONTENT_ERROR     = 0b00010000 // When set, Status carries the last error
)

const (
	KindSerial    = "serial"
	KindTCPServer = "tcp-server"
	KindTCPClient = "tcp-client"
	KindUDP       = "udp"
	KindWebSocket = "websocket"
	KindLoopback  = "loopback"
)

// Status is announced by endpoints when their connection state changes.
// Only the members flagged in Content are meaningful.
type Status struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Content   uint   `json:"-"`
	Connected bool   `json:"connected"`
	Clients   int    `json:"clients"`
	Address   string `json:"address,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// MergeStatus applies a partial update on top of the previous status.
func MergeStatus(previous, update Status) Status {
	if update.Content&CONTENT_KIND == 0x00 {
		update.Kind = previous.Kind
	}
	if update.Content&CONTENT_CONNECTED == 0x00 {
		update.Connected = previous.Connected
	}
	if update.Content&CONTENT_CLIENTS == 0x00 {
		update.Clients = previous.Clients
	}
	if update.Content&CONTENT_ADDRESS == 0x00 {
		update.Address = previous.Address
	}
	if update.Content&CONTENT_ERROR == 0x00 {
		update.LastError = previous.LastError
	}
	update.Content = previous.Content | update.Content
	return update
}

func connected(c bool, address string) Status {
	return Status{
		Content:   CONTENT_CONNECTED | CONTENT_ADDRESS,
		Connected: c,
		Address:   address,
	}
}

func failed(err error) Status {
	return Status{
		Content:   CONTENT_CONNECTED | CONTENT_ERROR,
		Connected: false,
		LastError: err.Error(),
	}
}

func clients(n int) Status {
	return Status{
		Content:   CONTENT_CLIENTS | CONTENT_CONNECTED,
		Connected: true,
		Clients:   n,
	}
}
