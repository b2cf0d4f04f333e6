package probe_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/thetooth/pingchart/probe"
)

func collect(src probe.Source) (lines []string) {
	for {
		line, ok := src.NextLine()
		if !ok {
			return
		}
		lines = append(lines, line)
	}
}

func waitExited(t *testing.T, src probe.Source) {
	t.Helper()
	select {
	case <-src.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("source did not report exit")
	}
}

func TestDriverLines(t *testing.T) {
	d, err := probe.Start(context.Background(), "sh", []string{"-c", `printf 'one\ntwo\r\n\nlast'`})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Terminate()

	got := collect(d)
	want := []string{"one", "two", "", "last"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, ok := d.NextLine(); ok {
		t.Error("finished driver produced another line")
	}
	waitExited(t, d)
	if err := d.Wait(); err != nil {
		t.Errorf("clean exit reported %v", err)
	}
}

func TestDriverSpawnError(t *testing.T) {
	_, err := probe.Start(context.Background(), "pingchart-no-such-binary", nil)
	if !errors.Is(err, probe.ErrSpawn) {
		t.Errorf("expected spawn error, got %v", err)
	}
}

func TestDriverTerminate(t *testing.T) {
	d, err := probe.Start(context.Background(), "sh", []string{"-c", "echo ready; exec sleep 30"})
	if err != nil {
		t.Fatal(err)
	}

	if line, ok := d.NextLine(); !ok || line != "ready" {
		t.Fatalf("got %q %v", line, ok)
	}

	start := time.Now()
	if err := d.Terminate(); err != nil {
		t.Fatal(err)
	}
	if err := d.Terminate(); err != nil {
		t.Errorf("second terminate: %v", err)
	}
	waitExited(t, d)
	if time.Since(start) > 5*time.Second {
		t.Error("terminate took too long")
	}
}

func TestDriverTerminateAfterExit(t *testing.T) {
	d, err := probe.Start(context.Background(), "sh", []string{"-c", "true"})
	if err != nil {
		t.Fatal(err)
	}
	collect(d)
	waitExited(t, d)

	if err := d.Terminate(); err != nil {
		t.Errorf("terminate after exit: %v", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ping.log")
	data := "PING 1.1.1.1 (1.1.1.1): 56 data bytes\n64 bytes from 1.1.1.1: icmp_seq=0 ttl=56 time=12.3 ms\npartial"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := probe.OpenFile(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Terminate()

	got := collect(src)
	want := []string{
		"PING 1.1.1.1 (1.1.1.1): 56 data bytes",
		"64 bytes from 1.1.1.1: icmp_seq=0 ttl=56 time=12.3 ms",
		"partial",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
	waitExited(t, src)
}

func TestFileSourceFollow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ping.log")
	if err := os.WriteFile(path, []byte("first\n"), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := probe.OpenFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Terminate()

	if line, ok := src.NextLine(); !ok || line != "first" {
		t.Fatalf("got %q %v", line, ok)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return
		}
		f.WriteString("second\n")
		f.Close()
	}()

	if line, ok := src.NextLine(); !ok || line != "second" {
		t.Fatalf("got %q %v", line, ok)
	}
}

func TestFileSourceMissing(t *testing.T) {
	_, err := probe.OpenFile(filepath.Join(t.TempDir(), "absent"), false)
	if !errors.Is(err, probe.ErrSpawn) {
		t.Errorf("expected spawn error, got %v", err)
	}
}
