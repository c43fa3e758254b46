package pool

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eslider/goimap/internal/connection"
)

// fakeDialer returns a Dialer that, on each call, starts a
// one-connection PREAUTH fake IMAP server and connects to it. Each call
// opens one fresh listener, since pool tests dial more than one
// connection per test.
func fakeDialer(t *testing.T) Dialer {
	t.Helper()
	return func() (*connection.Conn, error) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		go func() {
			defer ln.Close()
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			r := bufio.NewReader(conn)
			conn.Write([]byte("* PREAUTH ok\r\n"))
			line, _ := r.ReadString('\n')
			tag := strings.Fields(line)[0]
			conn.Write([]byte("* CAPABILITY IMAP4rev1\r\n"))
			conn.Write([]byte(tag + " OK CAPABILITY completed\r\n"))
			// Keep the connection open for NOOP-based liveness checks.
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				conn.Write([]byte(fields[0] + " OK NOOP completed\r\n"))
			}
		}()
		host, portStr, _ := net.SplitHostPort(ln.Addr().String())
		var port int
		for _, c := range portStr {
			port = port*10 + int(c-'0')
		}
		return connection.Dial(connection.Options{Host: host, Port: port, DialTimeout: 2 * time.Second})
	}
}

func TestPoolGrowsUpToConfiguredSize(t *testing.T) {
	p := New(Config{Size: 2}, fakeDialer(t), nil)

	c1, err := p.GetConnection()
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.GetConnection()
	if err != nil {
		t.Fatal(err)
	}
	if c1 == c2 {
		t.Fatal("expected two distinct connections")
	}
	if p.Active() != 2 {
		t.Fatalf("Active() = %d, want 2", p.Active())
	}
}

func TestPoolReusesReleasedConnection(t *testing.T) {
	p := New(Config{Size: 1}, fakeDialer(t), nil)

	c1, err := p.GetConnection()
	if err != nil {
		t.Fatal(err)
	}
	p.Release(c1, nil)

	c2, err := p.GetConnection()
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Fatal("expected the released connection to be reused")
	}
	if p.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", p.Active())
	}
}

func TestPoolDedicatedStoreConnectionIsNeverReturnedToSharedPool(t *testing.T) {
	p := New(Config{Size: 1, DedicatedStoreConnection: true}, fakeDialer(t), nil)

	store, reserved, err := p.GetStoreConnection()
	if err != nil {
		t.Fatal(err)
	}
	if !reserved {
		t.Fatal("expected reserved=true with DedicatedStoreConnection")
	}

	again, reserved2, err := p.GetStoreConnection()
	if err != nil {
		t.Fatal(err)
	}
	if again != store || !reserved2 {
		t.Fatal("expected the same dedicated store connection on a second call")
	}

	folderConn, err := p.GetFolderConnection()
	if err != nil {
		t.Fatal(err)
	}
	if folderConn == store {
		t.Fatal("folder connections must never borrow the dedicated store connection")
	}
}

// TestPoolConcurrentAcquireNeverExceedsSize fires exactly `size`
// simultaneous first-time GetConnection calls at an empty pool, so every
// caller is racing to grow it concurrently, and checks the pool never
// dials more connections than its configured size: the capacity check
// and the dial must be reserved atomically, not just checked-then-dialed.
func TestPoolConcurrentAcquireNeverExceedsSize(t *testing.T) {
	const size = 4
	const callers = size
	p := New(Config{Size: size}, fakeDialer(t), nil)

	var wg sync.WaitGroup
	conns := make([]*connection.Conn, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = p.GetConnection()
		}(i)
	}
	wg.Wait()

	for i, c := range conns {
		if c == nil {
			t.Fatalf("caller %d: GetConnection failed: %v", i, errs[i])
		}
		p.Release(c, nil)
	}

	seen := make(map[*connection.Conn]bool, callers)
	for _, c := range conns {
		seen[c] = true
	}
	if len(seen) != size {
		t.Fatalf("got %d distinct connections across %d concurrent callers, want %d", len(seen), callers, size)
	}
	if p.Active() != size {
		t.Fatalf("Active() = %d, want exactly %d", p.Active(), size)
	}
}

func TestPoolShutdownWakesBlockedAcquirers(t *testing.T) {
	p := New(Config{Size: 1}, fakeDialer(t), nil)
	c1, err := p.GetConnection()
	if err != nil {
		t.Fatal(err)
	}
	_ = c1

	done := make(chan error, 1)
	go func() {
		_, err := p.GetConnection()
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	p.Shutdown()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error from a blocked acquirer after Shutdown")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked acquirer was not woken by Shutdown")
	}
}
