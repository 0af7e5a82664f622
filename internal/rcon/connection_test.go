package rcon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-project/squadron/internal/protocol"
)

// fakeServer is a minimal in-process rcon server for exercising the
// connection against a real TCP socket.
type fakeServer struct {
	t        *testing.T
	ln       net.Listener
	password string

	// respond maps a command to its response body. Commands not in
	// the map get an empty response. A command in mute gets no
	// response at all (to provoke timeouts).
	respond map[string]string
	mute    map[string]bool

	mu   sync.Mutex
	conn net.Conn
}

func newFakeServer(t *testing.T, password string) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeServer{
		t:        t,
		ln:       ln,
		password: password,
		respond:  make(map[string]string),
		mute:     make(map[string]bool),
	}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	dec := protocol.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frames, err := dec.Feed(buf[:n])
		if err != nil {
			return
		}
		for _, f := range frames {
			switch f.Type {
			case protocol.TypeAuth:
				if f.Body == s.password {
					s.write(conn, f.ID, protocol.TypeAuthResponse, "")
				} else {
					s.write(conn, protocol.AuthFailedID, protocol.TypeAuthResponse, "")
				}
			case protocol.TypeExecCommand:
				s.mu.Lock()
				muted := s.mute[f.Body]
				body := s.respond[f.Body]
				s.mu.Unlock()
				if muted {
					continue
				}
				s.write(conn, f.ID, protocol.TypeResponseValue, body)
			}
		}
	}
}

func (s *fakeServer) write(conn net.Conn, id, typ int32, body string) {
	data, err := protocol.Encode(id, typ, body)
	require.NoError(s.t, err)
	_, _ = conn.Write(data)
}

// broadcast pushes an unsolicited chat frame to the connected client.
func (s *fakeServer) broadcast(line string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NotNil(s.t, conn)
	s.write(conn, 0, protocol.TypeChatValue, line)
}

func (s *fakeServer) dropClient() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func dialTest(t *testing.T, s *fakeServer, handlers Handlers) *Connection {
	conn, err := Dial(context.Background(), Config{
		Addr:     s.addr(),
		Password: "hunter2",
	}, handlers)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestDialAndExecute(t *testing.T) {
	s := newFakeServer(t, "hunter2")
	s.respond["ListPlayers"] = "----- Active Players -----\nID: 0 | Name: Mordecai"

	conn := dialTest(t, s, Handlers{})
	assert.Equal(t, StateReady, conn.State())

	out, err := conn.Execute(context.Background(), "ListPlayers")
	require.NoError(t, err)
	assert.Contains(t, out, "Mordecai")
}

func TestDialWrongPassword(t *testing.T) {
	s := newFakeServer(t, "hunter2")

	_, err := Dial(context.Background(), Config{
		Addr:     s.addr(),
		Password: "wrong",
	}, Handlers{})
	assert.True(t, errors.Is(err, ErrAuthFailed))
}

func TestExecuteTimeout(t *testing.T) {
	s := newFakeServer(t, "hunter2")
	s.mute["SlowCommand"] = true
	s.mute[""] = true // swallow the end marker too

	conn, err := Dial(context.Background(), Config{
		Addr:           s.addr(),
		Password:       "hunter2",
		CommandTimeout: 100 * time.Millisecond,
	}, Handlers{})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Execute(context.Background(), "SlowCommand")
	assert.True(t, errors.Is(err, ErrCommandTimeout))
}

func TestBroadcastNotConfusedWithResponse(t *testing.T) {
	s := newFakeServer(t, "hunter2")
	s.respond["ShowCurrentMap"] = "Current map is Yehorivka"

	broadcasts := make(chan string, 8)
	conn := dialTest(t, s, Handlers{
		Broadcast: func(line string) { broadcasts <- line },
	})

	// A broadcast arriving before and during command execution must
	// reach the handler, never the command caller.
	s.broadcast("[ChatAll] hello")

	out, err := conn.Execute(context.Background(), "ShowCurrentMap")
	require.NoError(t, err)
	assert.Equal(t, "Current map is Yehorivka", out)

	select {
	case line := <-broadcasts:
		assert.Equal(t, "[ChatAll] hello", line)
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestConcurrentExecutesGetOwnResponses(t *testing.T) {
	s := newFakeServer(t, "hunter2")
	for i := 0; i < 10; i++ {
		cmd := fmt.Sprintf("cmd-%d", i)
		s.respond[cmd] = fmt.Sprintf("reply-%d", i)
	}

	conn := dialTest(t, s, Handlers{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := conn.Execute(context.Background(), fmt.Sprintf("cmd-%d", i))
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("reply-%d", i), out)
		}(i)
	}
	wg.Wait()
}

func TestClosedHandlerOnSocketDrop(t *testing.T) {
	s := newFakeServer(t, "hunter2")

	closed := make(chan error, 1)
	conn := dialTest(t, s, Handlers{
		Closed: func(err error) { closed <- err },
	})

	s.dropClient()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("closed handler not invoked after socket drop")
	}

	_, err := conn.Execute(context.Background(), "ListPlayers")
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestResponseSharingSegmentWithUnknownFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	// Hand-rolled server that packs an unknown-type frame, the command
	// response, and the end marker into a single TCP segment.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}

		dec := protocol.NewDecoder()
		buf := make([]byte, 4096)
		var execIDs []int32
		for len(execIDs) < 2 {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			frames, _ := dec.Feed(buf[:n])
			for _, f := range frames {
				switch f.Type {
				case protocol.TypeAuth:
					reply, _ := protocol.Encode(f.ID, protocol.TypeAuthResponse, "")
					conn.Write(reply)
				case protocol.TypeExecCommand:
					execIDs = append(execIDs, f.ID)
				}
			}
		}

		junk, _ := protocol.Encode(0, 7, "future frame kind")
		resp, _ := protocol.Encode(execIDs[0], protocol.TypeResponseValue, "Current map is Narva")
		end, _ := protocol.Encode(execIDs[1], protocol.TypeResponseValue, "")
		var batch []byte
		batch = append(batch, junk...)
		batch = append(batch, resp...)
		batch = append(batch, end...)
		conn.Write(batch)

		// Hold the socket open so the client never sees EOF.
		io.Copy(io.Discard, conn)
	}()

	conn, err := Dial(context.Background(), Config{
		Addr:           ln.Addr().String(),
		Password:       "hunter2",
		CommandTimeout: 2 * time.Second,
	}, Handlers{})
	require.NoError(t, err)
	defer conn.Close()

	out, err := conn.Execute(context.Background(), "ShowCurrentMap")
	require.NoError(t, err)
	assert.Equal(t, "Current map is Narva", out)
}

func TestExecuteAfterClose(t *testing.T) {
	s := newFakeServer(t, "hunter2")
	conn := dialTest(t, s, Handlers{})
	conn.Close()

	_, err := conn.Execute(context.Background(), "ListPlayers")
	assert.True(t, errors.Is(err, ErrNotReady))
}
