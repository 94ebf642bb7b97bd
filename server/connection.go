package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kl4mm/hash-db/dispatcher"
	"github.com/kl4mm/hash-db/protocol"
)

// connBufSize mirrors the 4 KiB starting capacity
// original_source/src/serverv2/connection.rs gives its BytesMut.
const connBufSize = 4 * 1024

// connection reads commands off one client socket, dispatches them, and
// writes back replies, strictly in the order they arrive. Running each
// connection on its own goroutine (see Server.Serve) is what gives
// the dispatcher its per-connection sequential ordering guarantee:
// nothing reorders a single client's requests.
type connection struct {
	id     uuid.UUID
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	disp   *dispatcher.Dispatcher
	log    *logrus.Entry
	buf    []byte
	filled int
}

func newConnection(c net.Conn, disp *dispatcher.Dispatcher, log *logrus.Logger) *connection {
	id := uuid.New()
	return &connection{
		id:   id,
		conn: c,
		r:    bufio.NewReader(c),
		w:    bufio.NewWriter(c),
		disp: disp,
		log:  log.WithFields(logrus.Fields{"conn": id.String(), "remote": c.RemoteAddr().String()}),
		buf:  make([]byte, 0, connBufSize),
	}
}

// serve loops reading and dispatching commands until the client
// disconnects or a fatal I/O error occurs.
func (c *connection) serve() {
	defer c.conn.Close()
	c.log.Info("connection opened")

	for {
		cmd, ok, err := c.readCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.WithError(err).Warn("connection read error")
			}
			return
		}
		if !ok {
			// KindIgnore: blank line or unrecognised verb, no reply.
			continue
		}

		reply, err := c.disp.Execute(cmd)
		if err != nil && !errors.Is(err, dispatcher.ErrNoEvictableSlot) {
			c.log.WithError(err).Error("dispatch error")
			return
		}
		if err != nil {
			// ErrNoEvictableSlot: already logged by the dispatcher; the
			// contract is to reply with no bytes and keep the connection
			// open.
			continue
		}
		if reply == nil {
			continue
		}

		if _, err := c.w.Write(reply); err != nil {
			c.log.WithError(err).Warn("connection write error")
			return
		}
		if err := c.w.Flush(); err != nil {
			c.log.WithError(err).Warn("connection flush error")
			return
		}
	}
}

// readCommand parses one command from the accumulated buffer, reading more
// from the socket as needed. ok is false only for a parsed KindIgnore
// command; err is non-nil only on a genuine I/O failure or clean EOF.
func (c *connection) readCommand() (protocol.Command, bool, error) {
	for {
		if cmd, n, parsed := protocol.Parse(c.buf[:c.filled]); parsed {
			remaining := c.filled - n
			copy(c.buf[:remaining], c.buf[n:c.filled])
			c.filled = remaining
			return cmd, cmd.Kind != protocol.KindIgnore, nil
		}

		if c.filled == cap(c.buf) {
			grown := make([]byte, cap(c.buf)*2+connBufSize)
			copy(grown, c.buf[:c.filled])
			c.buf = grown[:0]
		}

		n, err := c.r.Read(c.buf[c.filled:cap(c.buf)])
		if n == 0 && err != nil {
			return protocol.Command{}, false, fmt.Errorf("connection: read: %w", err)
		}
		c.filled += n
	}
}
