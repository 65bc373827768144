package ws

import (
	"context"
	"errors"
	"sync"

	"parley/internal/models"
)

type wsConn interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

type messageHub interface {
	Connect(userID string) *Conn
	Disconnect(c *Conn)
	HandleEvent(ctx context.Context, c *Conn, ev models.ClientEvent)
}

// Connection pumps events between one websocket and the hub.
type Connection struct {
	ws         wsConn
	hub        messageHub
	conn       *Conn
	fromClient chan models.ClientEvent
	errorCh    chan error
}

func NewConnection(hub messageHub, ws wsConn, userID string) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		conn:       hub.Connect(userID),
		fromClient: make(chan models.ClientEvent),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		close(c.fromClient)
		close(c.errorCh)
		// Presence and membership cleanup is synchronous with teardown.
		c.hub.Disconnect(c.conn)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpEvents(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpEvents(ctx context.Context) error {
	for {
		var ev models.ClientEvent
		if err := c.ws.ReadJSON(&ev); err != nil {
			return err
		}
		select {
		case c.fromClient <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case ev := <-c.fromClient:
			c.hub.HandleEvent(ctx, c.conn, ev)
		case ev := <-c.conn.send:
			if err := c.ws.WriteJSON(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
