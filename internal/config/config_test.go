package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"LIGHTSCRIPT_DEVICE", "LIGHTSCRIPT_SCRIPT_DIR", "LIGHTSCRIPT_METRICS_ADDR",
		"LIGHTSCRIPT_STORE_PATH", "LIGHTSCRIPT_SERIAL_BAUD",
		"LIGHTSCRIPT_CONNECT_TIMEOUT", "LIGHTSCRIPT_TICK_INTERVAL",
	} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.Device != "" || c.ScriptDir != "." {
		t.Errorf("defaults: %+v", c)
	}
	if c.SerialBaud != 115200 {
		t.Errorf("baud: %d", c.SerialBaud)
	}
	if c.ConnectTimeout != 5*time.Second {
		t.Errorf("timeout: %v", c.ConnectTimeout)
	}
	if c.TickInterval != 50*time.Millisecond {
		t.Errorf("tick: %v", c.TickInterval)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LIGHTSCRIPT_DEVICE", "192.168.1.40:9000")
	t.Setenv("LIGHTSCRIPT_SCRIPT_DIR", "/shows")
	t.Setenv("LIGHTSCRIPT_SERIAL_BAUD", "230400")
	t.Setenv("LIGHTSCRIPT_CONNECT_TIMEOUT", "2s")
	t.Setenv("LIGHTSCRIPT_TICK_INTERVAL", "10ms")
	c := Load()
	if c.Device != "192.168.1.40:9000" || c.ScriptDir != "/shows" {
		t.Errorf("env: %+v", c)
	}
	if c.SerialBaud != 230400 || c.ConnectTimeout != 2*time.Second || c.TickInterval != 10*time.Millisecond {
		t.Errorf("env: %+v", c)
	}
}

func TestLoadClampsNonsense(t *testing.T) {
	t.Setenv("LIGHTSCRIPT_SERIAL_BAUD", "-1")
	t.Setenv("LIGHTSCRIPT_TICK_INTERVAL", "10s")
	c := Load()
	if c.SerialBaud != 115200 {
		t.Errorf("baud clamp: %d", c.SerialBaud)
	}
	if c.TickInterval != 50*time.Millisecond {
		t.Errorf("tick clamp: %v", c.TickInterval)
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("LIGHTSCRIPT_SERIAL_BAUD", "fast")
	t.Setenv("LIGHTSCRIPT_CONNECT_TIMEOUT", "soon")
	c := Load()
	if c.SerialBaud != 115200 || c.ConnectTimeout != 5*time.Second {
		t.Errorf("fallback: %+v", c)
	}
}
