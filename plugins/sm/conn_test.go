//go:build linux

package sm

import (
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestListenerAcceptThrottling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock")
	l, err := NewListener(path)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Close()

	if _, ok, err := l.Accept(); err != nil || ok {
		t.Fatalf("Accept with nothing pending: ok=%v err=%v", ok, err)
	}

	clientFD, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer unix.Close(clientFD)

	// Give the kernel a moment to complete the connect handshake.
	time.Sleep(20 * time.Millisecond)

	fd, ok, err := l.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !ok {
		t.Fatalf("Accept should have a pending connection")
	}
	defer unix.Close(fd)
}

func TestConnIDHandshakeWithFDPassing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock")
	l, err := NewListener(path)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Close()

	clientFD, err := Dial(path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer unix.Close(clientFD)

	var serverFD int
	for i := 0; i < 50; i++ {
		fd, ok, aerr := l.Accept()
		if aerr != nil {
			t.Fatalf("Accept: %v", aerr)
		}
		if ok {
			serverFD = fd
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if serverFD == 0 {
		t.Fatalf("Accept never produced a connection")
	}
	defer unix.Close(serverFD)

	if err := sendPeerID(clientFD, 4242, 7); err != nil {
		t.Fatalf("sendPeerID: %v", err)
	}
	pid, instance, err := recvPeerID(serverFD)
	if err != nil {
		t.Fatalf("recvPeerID: %v", err)
	}
	if pid != 4242 || instance != 7 {
		t.Fatalf("recvPeerID = (%d, %d), want (4242, 7)", pid, instance)
	}

	local, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier local: %v", err)
	}
	defer local.Destroy()
	remote, err := NewNotifier()
	if err != nil {
		t.Fatalf("NewNotifier remote: %v", err)
	}
	defer remote.Destroy()

	connID := l.NextConnID()
	if err := sendConnIDAndFDs(serverFD, connID, local.FD(), remote.FD()); err != nil {
		t.Fatalf("sendConnIDAndFDs: %v", err)
	}

	gotConnID, fd0, fd1, err := recvConnIDAndFDs(clientFD)
	if err != nil {
		t.Fatalf("recvConnIDAndFDs: %v", err)
	}
	defer unix.Close(fd0)
	defer unix.Close(fd1)

	if gotConnID != connID {
		t.Fatalf("got connID %d, want %d", gotConnID, connID)
	}

	// The client inverts roles: the server's local notifier becomes the
	// client's remote, and vice versa.
	clientRemote := FromFD(fd0)
	if err := local.Set(); err != nil {
		t.Fatalf("Set server-local: %v", err)
	}
	got, err := clientRemote.Get()
	if err != nil {
		t.Fatalf("Get via inverted fd: %v", err)
	}
	if !got {
		t.Fatalf("client should observe the server's local notifier through the passed fd")
	}
}

func TestNextConnIDIncrementsMonotonically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock")
	l, err := NewListener(path)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	defer l.Close()

	first := l.NextConnID()
	second := l.NextConnID()
	if second != first+1 {
		t.Fatalf("NextConnID: got %d then %d, want consecutive values", first, second)
	}
}
