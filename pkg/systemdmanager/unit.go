// Package systemdmanager inspects and restarts systemd units over D-Bus.
package systemdmanager

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUnsupported = errors.New("systemdmanager: unsupported OS (linux only)")
	ErrClosed      = errors.New("systemd connection is closed")
)

// UnitStatus is the core state of a unit.
type UnitStatus struct {
	Name        string
	Active      string // active, inactive, failed, etc.
	SubState    string // running, dead, etc.
	LoadState   string // loaded, not-found, etc.
	Description string
	StateChange time.Time
}

// Found reports whether systemd knows the unit.
func (s UnitStatus) Found() bool { return s.LoadState != "" && s.LoadState != "not-found" }

// Running reports whether the unit is active (or reloading).
func (s UnitStatus) Running() bool { return s.Active == "active" || s.Active == "reloading" }

// UnitName appends ".service" to names without a unit suffix.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		switch name[i+1:] {
		case "service", "socket", "timer", "target", "mount", "path", "slice", "scope", "device", "swap", "automount":
			return name
		}
	}
	return name + ".service"
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	// systemd returns org.freedesktop.systemd1.NoSuchUnit for missing units.
	return strings.Contains(es, "NoSuchUnit") || strings.Contains(es, "not-found")
}

// timestamp converts a systemd microsecond timestamp property.
func timestamp(props map[string]interface{}, key string) time.Time {
	if ts, ok := props[key].(uint64); ok && ts > 0 {
		return time.UnixMicro(int64(ts))
	}
	return time.Time{}
}

func stringProp(props map[string]interface{}, key string) string {
	v, _ := props[key].(string)
	return v
}

func statusFromProps(unit string, props map[string]interface{}) UnitStatus {
	st := UnitStatus{
		Name:        unit,
		Active:      stringProp(props, "ActiveState"),
		SubState:    stringProp(props, "SubState"),
		LoadState:   stringProp(props, "LoadState"),
		Description: stringProp(props, "Description"),
		StateChange: timestamp(props, "StateChangeTimestamp"),
	}
	if st.LoadState == "not-found" {
		return notFound(unit)
	}
	return st
}

func notFound(unit string) UnitStatus {
	return UnitStatus{Name: unit, Active: "unknown", SubState: "not-found", LoadState: "not-found"}
}
