package rrlog

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// WebSocketSink sends the header and then every record as binary messages
// on a websocket connection. Writes happen on the caller's goroutine.
type WebSocketSink struct {
	conn   *websocket.Conn
	info   StreamInfo
	header bool
}

// DialWebSocket connects to a host listening at url.
func DialWebSocket(url string, info StreamInfo) (*WebSocketSink, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("rrlog: connect %s: %w", url, err)
	}
	return &WebSocketSink{conn: conn, info: info}, nil
}

func (s *WebSocketSink) writeHeader() error {
	if s.header {
		return nil
	}
	s.header = true
	if err := s.conn.WriteMessage(websocket.BinaryMessage, encodeHeader(s.info)); err != nil {
		return fmt.Errorf("rrlog: send header: %w", err)
	}
	return nil
}

// WriteRecord implements Sink.
func (s *WebSocketSink) WriteRecord(rec *Record) error {
	if err := s.writeHeader(); err != nil {
		return err
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		return fmt.Errorf("rrlog: send %s: %w", rec.EntityPath, err)
	}
	return nil
}

// Close sends a normal closure and closes the connection.
func (s *WebSocketSink) Close() error {
	if err := s.writeHeader(); err != nil {
		s.conn.Close()
		return err
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		s.conn.Close()
		return fmt.Errorf("rrlog: close: %w", err)
	}
	return s.conn.Close()
}

// DecodeMessage decodes a websocket message: the first message of a
// connection is the header, every later one a record payload.
func DecodeMessage(first bool, msg []byte) (StreamInfo, *Record, error) {
	if first {
		info, err := decodeHeader(msg)
		return info, nil, err
	}
	rec, err := decodeRecord(msg)
	return StreamInfo{}, rec, err
}
