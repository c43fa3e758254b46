package folder

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/eslider/goimap/internal/connection"
	"github.com/eslider/goimap/internal/protocol"
)

// fakeServer starts a listener and runs script against the first accepted
// connection, mirroring the pattern used in internal/connection's tests
// (Dial here performs a real TCP dial, so a scripted loopback server is
// the simplest way to exercise Folder against a live *connection.Conn).
func fakeServer(t *testing.T, script func(r *bufio.Reader, w net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(bufio.NewReader(conn), conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func dialAddr(addr string) (string, int) {
	host, portStr, _ := net.SplitHostPort(addr)
	var port int
	for _, c := range portStr {
		port = port*10 + int(c-'0')
	}
	return host, port
}

// stubReleaser records the connection it was handed back, standing in
// for the pool the root store package normally wires.
type stubReleaser struct {
	released *connection.Conn
}

func (s *stubReleaser) Release(c *connection.Conn, detach connection.Handler) {
	s.released = c
}

func dialAndOpen(t *testing.T, afterCapability func(r *bufio.Reader, w net.Conn)) (*Folder, *stubReleaser) {
	t.Helper()
	addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
		w.Write([]byte("* PREAUTH ok\r\n"))
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		w.Write([]byte("* CAPABILITY IMAP4rev1\r\n"))
		w.Write([]byte(tag + " OK CAPABILITY completed\r\n"))
		afterCapability(r, w)
	})
	host, port := dialAddr(addr)
	conn, err := connection.Dial(connection.Options{Host: host, Port: port, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	releaser := &stubReleaser{}
	f := New("INBOX", releaser)
	if err := f.Open(func() (*connection.Conn, error) { return conn, nil }, false); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return f, releaser
}

func TestOpenPopulatesStatusFromSelect(t *testing.T) {
	f, _ := dialAndOpen(t, func(r *bufio.Reader, w net.Conn) {
		line, _ := r.ReadString('\n')
		if !strings.Contains(line, "SELECT INBOX") {
			t.Errorf("expected SELECT INBOX, got %q", line)
		}
		tag := strings.Fields(line)[0]
		w.Write([]byte("* 10 EXISTS\r\n"))
		w.Write([]byte("* 2 RECENT\r\n"))
		w.Write([]byte(tag + " OK [READ-WRITE] SELECT completed\r\n"))

		// idle until the test closes the connection
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	})

	if !f.IsOpen() {
		t.Fatal("expected folder to report open after Open")
	}
	st := f.Status()
	if st.Messages != 10 || st.Recent != 2 {
		t.Fatalf("Status = %+v, want Messages=10 Recent=2", st)
	}
}

func TestOpenRejectsForcedReadOnlyWhenReadWriteRequested(t *testing.T) {
	addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
		w.Write([]byte("* PREAUTH ok\r\n"))
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		w.Write([]byte("* CAPABILITY IMAP4rev1\r\n"))
		w.Write([]byte(tag + " OK CAPABILITY completed\r\n"))

		line, _ = r.ReadString('\n')
		tag = strings.Fields(line)[0]
		w.Write([]byte("* 1 EXISTS\r\n"))
		w.Write([]byte(tag + " OK [READ-ONLY] SELECT completed\r\n"))
	})
	host, port := dialAddr(addr)
	conn, err := connection.Dial(connection.Options{Host: host, Port: port, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	f := New("INBOX", &stubReleaser{})
	err = f.Open(func() (*connection.Conn, error) { return conn, nil }, false)
	if err == nil {
		t.Fatal("expected an error when the server forces read-only against a read-write request")
	}
	if f.IsOpen() {
		t.Error("folder should not be marked open after a rejected Open")
	}
}

func TestGetMessageRefreshesViaNoopWhenBeyondMaxSeq(t *testing.T) {
	f, _ := dialAndOpen(t, func(r *bufio.Reader, w net.Conn) {
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		w.Write([]byte("* 3 EXISTS\r\n"))
		w.Write([]byte(tag + " OK [READ-WRITE] SELECT completed\r\n"))

		// GetMessage(5) triggers a NOOP since maxSeq is only 3.
		line, _ = r.ReadString('\n')
		if !strings.Contains(line, "NOOP") {
			t.Errorf("expected NOOP, got %q", line)
		}
		tag = strings.Fields(line)[0]
		w.Write([]byte("* 5 EXISTS\r\n"))
		w.Write([]byte(tag + " OK NOOP completed\r\n"))

		// GetMessage(6) refreshes again; no new EXISTS this time.
		line, _ = r.ReadString('\n')
		if !strings.Contains(line, "NOOP") {
			t.Errorf("expected NOOP, got %q", line)
		}
		tag = strings.Fields(line)[0]
		w.Write([]byte(tag + " OK NOOP completed\r\n"))

		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	})

	m, err := f.GetMessage(5)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if m.SeqNum != 5 {
		t.Errorf("SeqNum = %d, want 5", m.SeqNum)
	}

	if _, err := f.GetMessage(6); err == nil {
		t.Error("expected an out-of-range error for a sequence number still beyond maxSeq after refresh")
	}
}

func TestFetchSkipsAlreadySatisfiedMessages(t *testing.T) {
	f, _ := dialAndOpen(t, func(r *bufio.Reader, w net.Conn) {
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		w.Write([]byte("* 2 EXISTS\r\n"))
		w.Write([]byte(tag + " OK [READ-WRITE] SELECT completed\r\n"))

		// Only message 2 is unsatisfied, so FETCH should request just "2".
		line, _ = r.ReadString('\n')
		if !strings.Contains(line, "FETCH 2 ") {
			t.Errorf("expected FETCH for seq 2 only, got %q", line)
		}
		tag = strings.Fields(line)[0]
		w.Write([]byte("* 2 FETCH (FLAGS (\\Seen))\r\n"))
		w.Write([]byte(tag + " OK FETCH completed\r\n"))

		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	})

	m1, err := f.GetMessage(1)
	if err != nil {
		t.Fatalf("GetMessage(1): %v", err)
	}
	m1.Flags = protocol.NewFlagSet(protocol.FlagSeen)
	m1.HasFlags = true

	m2, err := f.GetMessage(2)
	if err != nil {
		t.Fatalf("GetMessage(2): %v", err)
	}

	if err := f.Fetch([]*Message{m1, m2}, &protocol.FetchProfile{Flags: true}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !m2.HasFlags || !m2.Flags.Contains(protocol.FlagSeen) {
		t.Errorf("expected message 2 flags merged, got %v", m2.Flags.Names())
	}
}

func TestSetFlagsRejectsReadOnlyFolder(t *testing.T) {
	addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
		w.Write([]byte("* PREAUTH ok\r\n"))
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		w.Write([]byte("* CAPABILITY IMAP4rev1\r\n"))
		w.Write([]byte(tag + " OK CAPABILITY completed\r\n"))

		line, _ = r.ReadString('\n')
		if !strings.Contains(line, "EXAMINE") {
			t.Errorf("expected EXAMINE for a read-only Open, got %q", line)
		}
		tag = strings.Fields(line)[0]
		w.Write([]byte("* 1 EXISTS\r\n"))
		w.Write([]byte(tag + " OK [READ-ONLY] EXAMINE completed\r\n"))

		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	})
	host, port := dialAddr(addr)
	conn, err := connection.Dial(connection.Options{Host: host, Port: port, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	f := New("INBOX", &stubReleaser{})
	if err := f.Open(func() (*connection.Conn, error) { return conn, nil }, true); err != nil {
		t.Fatalf("Open: %v", err)
	}

	m, err := f.GetMessage(1)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if err := f.SetFlags([]*Message{m}, protocol.NewFlagSet(protocol.FlagSeen), true); err == nil {
		t.Fatal("expected SetFlags to reject a read-only folder")
	}
}

// TestCloseReleasesConnectionAndMarksClosed opens the folder read-only
// (EXAMINE) so Close's liveness-check NOOP is the only extra round trip
// before CLOSE (a read-write folder also re-EXAMINEs to dodge CLOSE's
// implicit expunge, which is exercised by the read-write path instead).
func TestCloseReleasesConnectionAndMarksClosed(t *testing.T) {
	addr := fakeServer(t, func(r *bufio.Reader, w net.Conn) {
		w.Write([]byte("* PREAUTH ok\r\n"))
		line, _ := r.ReadString('\n')
		tag := strings.Fields(line)[0]
		w.Write([]byte("* CAPABILITY IMAP4rev1\r\n"))
		w.Write([]byte(tag + " OK CAPABILITY completed\r\n"))

		line, _ = r.ReadString('\n') // EXAMINE INBOX
		tag = strings.Fields(line)[0]
		w.Write([]byte("* 1 EXISTS\r\n"))
		w.Write([]byte(tag + " OK [READ-ONLY] EXAMINE completed\r\n"))

		line, _ = r.ReadString('\n') // Close's IsAlive(0) liveness NOOP
		if !strings.Contains(line, "NOOP") {
			t.Errorf("expected NOOP, got %q", line)
		}
		tag = strings.Fields(line)[0]
		w.Write([]byte(tag + " OK NOOP completed\r\n"))

		line, _ = r.ReadString('\n')
		if !strings.Contains(line, "CLOSE") {
			t.Errorf("expected CLOSE, got %q", line)
		}
		tag = strings.Fields(line)[0]
		w.Write([]byte(tag + " OK CLOSE completed\r\n"))
	})
	host, port := dialAddr(addr)
	conn, err := connection.Dial(connection.Options{Host: host, Port: port, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	releaser := &stubReleaser{}
	f := New("INBOX", releaser)
	if err := f.Open(func() (*connection.Conn, error) { return conn, nil }, true); err != nil {
		t.Fatalf("Open: %v", err)
	}

	var events []Event
	f.OnEvent(func(e Event) { events = append(events, e) })

	if err := f.Close(false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.IsOpen() {
		t.Error("expected folder to report closed")
	}
	if releaser.released == nil {
		t.Error("expected the connection to be released back to the pool")
	}
	if len(events) != 1 || events[0].Kind != EventClosed {
		t.Fatalf("events = %+v", events)
	}
}
