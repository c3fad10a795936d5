package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("role", event.LocalRole.String()),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.PeerName != "" {
		attrs = append(attrs, slog.String("peer_name", event.PeerName))
	}

	switch {
	case event.Transfer != nil:
		attrs = append(attrs,
			slog.Int("requested", event.Transfer.Requested),
			slog.Int("transferred", event.Transfer.Transferred),
		)
		if event.Transfer.StatusName != "" {
			attrs = append(attrs, slog.String("status", event.Transfer.StatusName))
		}
	case event.Handshake != nil:
		attrs = append(attrs,
			slog.Int("step", event.Handshake.Step),
			slog.String("outcome", event.Handshake.Outcome),
			slog.Duration("elapsed", event.Handshake.Duration),
		)
		if event.Handshake.Cipher != "" {
			attrs = append(attrs, slog.String("cipher", event.Handshake.Cipher))
		}
		if event.Handshake.Version != "" {
			attrs = append(attrs, slog.String("version", event.Handshake.Version))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "tls", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
