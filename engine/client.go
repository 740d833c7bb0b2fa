package engine

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/magbot-sim/magbot/protocol"
)

// stepRequest is the outbound frame envelope.
type stepRequest struct {
	Type       string               `json:"type"`
	Directives []protocol.Directive `json:"directives"`
}

// Client speaks the step protocol over a websocket. It is not safe for
// concurrent use; the scheduling model is single-threaded by contract.
type Client struct {
	conn   *websocket.Conn
	logger golog.Logger
}

// Dial connects to a running engine at addr (a ws:// URL). The engine must
// already be up; this package does not manage its lifecycle.
func Dial(ctx context.Context, addr string, logger golog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing physics engine at %s", addr)
	}
	logger.Infow("connected to physics engine", "addr", addr)
	return &Client{conn: conn, logger: logger}, nil
}

// Step sends one frame of directives and blocks for the telemetry answer.
func (c *Client) Step(ctx context.Context, directives []protocol.Directive) (*protocol.Telemetry, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return nil, errors.Wrap(ErrConnectionLost, err.Error())
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, errors.Wrap(ErrConnectionLost, err.Error())
		}
	}

	if err := c.conn.WriteJSON(stepRequest{Type: "step", Directives: directives}); err != nil {
		return nil, errors.Wrap(ErrConnectionLost, err.Error())
	}

	var tel protocol.Telemetry
	if err := c.conn.ReadJSON(&tel); err != nil {
		return nil, errors.Wrap(ErrConnectionLost, err.Error())
	}
	return &tel, nil
}

// Close shuts the connection down cleanly.
func (c *Client) Close() error {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if closeErr := c.conn.Close(); closeErr != nil {
		return closeErr
	}
	return err
}
