package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mash-protocol/tlsbridge/pkg/log"
)

var testTime = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cbor")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

// handshakeLog returns the events of one short client connection.
func handshakeLog() []log.Event {
	return []log.Event{
		{
			Timestamp: testTime, ConnectionID: "abc12345-0001", LocalRole: log.RoleClient,
			Direction: log.DirectionOut, Layer: log.LayerTransport, Category: log.CategoryTransfer,
			RemoteAddr: "10.0.0.5:8443",
			Transfer:   &log.TransferEvent{Requested: 517, Transferred: 517},
		},
		{
			Timestamp: testTime.Add(time.Millisecond), ConnectionID: "abc12345-0001", LocalRole: log.RoleClient,
			Layer: log.LayerEngine, Category: log.CategoryHandshake, PeerName: "device.local",
			Handshake: &log.HandshakeEvent{Step: 1, Outcome: "WOULD_BLOCK", Status: -9803, Duration: 200 * time.Microsecond},
		},
		{
			Timestamp: testTime.Add(5 * time.Millisecond), ConnectionID: "abc12345-0001", LocalRole: log.RoleClient,
			Layer: log.LayerEngine, Category: log.CategoryHandshake, PeerName: "device.local",
			Handshake: &log.HandshakeEvent{Step: 2, Outcome: "READY", Version: "TLS 1.3", Cipher: "TLS_AES_128_GCM_SHA256", Duration: 3 * time.Millisecond},
		},
		{
			Timestamp: testTime.Add(6 * time.Millisecond), ConnectionID: "abc12345-0001", LocalRole: log.RoleClient,
			Direction: log.DirectionOut, Layer: log.LayerSession, Category: log.CategoryTransfer,
			Transfer: &log.TransferEvent{Requested: 12, Transferred: 12},
		},
		{
			Timestamp: testTime.Add(7 * time.Millisecond), ConnectionID: "abc12345-0001", LocalRole: log.RoleClient,
			Direction: log.DirectionIn, Layer: log.LayerSession, Category: log.CategoryTransfer,
			Transfer: &log.TransferEvent{Requested: 4096, Transferred: 12},
		},
		{
			Timestamp: testTime.Add(time.Second), ConnectionID: "def67890-0002", LocalRole: log.RoleServer,
			Layer: log.LayerEngine, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerEngine, Message: "bad certificate", Context: "handshake"},
		},
	}
}
