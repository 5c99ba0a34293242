package devstore

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConnectHistory(t *testing.T) {
	s := openTemp(t)
	if err := s.RecordConnect("/dev/ttyACM0", "picolume 2.0"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordConnect("/dev/ttyACM0", "picolume 2.1"); err != nil {
		t.Fatal(err)
	}
	fw, err := s.LastFirmware("/dev/ttyACM0")
	if err != nil {
		t.Fatal(err)
	}
	if fw != "picolume 2.1" {
		t.Errorf("firmware: %q", fw)
	}
}

func TestLastFirmwareUnknownDevice(t *testing.T) {
	s := openTemp(t)
	fw, err := s.LastFirmware("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if fw != "" {
		t.Errorf("firmware: %q", fw)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTemp(t)
	runID, err := s.BeginRun("192.168.1.40", 12, true)
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}
	if err := s.EndRun(runID); err != nil {
		t.Fatal(err)
	}
	n, err := s.RunCount("192.168.1.40")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("run count: %d", n)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var s *Store
	if err := s.RecordConnect("x", "y"); err != nil {
		t.Fatal(err)
	}
	runID, err := s.BeginRun("x", 1, false)
	if err != nil || runID == "" {
		t.Fatalf("begin: %q %v", runID, err)
	}
	if err := s.EndRun(runID); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
