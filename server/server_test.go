package server

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/kl4mm/hash-db/disk"
	"github.com/kl4mm/hash-db/dispatcher"
	"github.com/kl4mm/hash-db/keydir"
	"github.com/kl4mm/hash-db/page"
	"github.com/kl4mm/hash-db/pager"
)

func startTestServer(t *testing.T) (addr string, cancel context.CancelFunc) {
	t.Helper()

	d := disk.OpenMemory(256, 2)
	cache := pager.New(d, 2, page.New(0, 256), 0, 4)
	disp := dispatcher.New(cache, keydir.New(), nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close()

	srv := New(addr, disp, cache, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		d.Close()
		cache.Close()
	})

	// Give the listener a moment to bind.
	for i := 0; i < 100; i++ {
		if c, err := net.Dial("tcp", addr); err == nil {
			c.Close()
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return addr, cancel
}

func TestServerInsertAndGetRoundTrip(t *testing.T) {
	addr, _ := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)

	if _, err := conn.Write([]byte("insert foo bar\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "Success\n" {
		t.Fatalf("got %q, want Success", line)
	}

	if _, err := conn.Write([]byte("get foo\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	line, err = r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "foo bar\n" {
		t.Fatalf("got %q, want %q", line, "foo bar\n")
	}
}

func TestServerTwoConnectionsAreIndependent(t *testing.T) {
	addr, _ := startTestServer(t)

	c1, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c1.Close()
	c2, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c2.Close()

	c1.SetDeadline(time.Now().Add(2 * time.Second))
	c2.SetDeadline(time.Now().Add(2 * time.Second))
	r1 := bufio.NewReader(c1)
	r2 := bufio.NewReader(c2)

	if _, err := c1.Write([]byte("insert k1 v1\n")); err != nil {
		t.Fatalf("write c1: %v", err)
	}
	if _, err := c2.Write([]byte("insert k2 v2\n")); err != nil {
		t.Fatalf("write c2: %v", err)
	}

	line1, err := r1.ReadString('\n')
	if err != nil || line1 != "Success\n" {
		t.Fatalf("c1 reply = %q err=%v", line1, err)
	}
	line2, err := r2.ReadString('\n')
	if err != nil || line2 != "Success\n" {
		t.Fatalf("c2 reply = %q err=%v", line2, err)
	}

	if _, err := c1.Write([]byte("get k2\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := r1.ReadString('\n')
	if err != nil || got != "k2 v2\n" {
		t.Fatalf("got %q err=%v, want k2 v2 visible across connections", got, err)
	}
}
