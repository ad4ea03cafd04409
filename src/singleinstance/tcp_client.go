package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryRunOnce(ctx context.Context, mode Mode) (bool, []byte, error) {
	timeout := timeoutFrom(ctx, 2*time.Second)
	port, ok := findResident(ctx, CurrentPortRange(), timeout)
	if !ok {
		return false, nil, nil
	}
	conn, err := net.DialTimeout("tcp", residentAddr(port), timeout)
	if err != nil {
		return false, nil, err
	}
	defer conn.Close()
	// The resident answers after the user finishes selecting; only ctx bounds the wait.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()
	payload, err := exchange(conn, mode)
	return true, payload, err
}

func exchange(conn net.Conn, mode Mode) ([]byte, error) {
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(mode.String() + "\n"); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	body, _ := io.ReadAll(br)
	switch status {
	case successLine:
		return body, nil
	case errorLine:
		return nil, errors.New(string(body))
	default:
		return nil, errors.New("unexpected resident response: " + strconv.Quote(status))
	}
}
