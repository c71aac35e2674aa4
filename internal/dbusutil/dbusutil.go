// Package dbusutil holds small helpers for talking to session-bus services.
package dbusutil

import (
	"github.com/godbus/dbus/v5"
)

// Call invokes a method on a session-bus object and stores the single
// return value into result. Pass nil when the method returns nothing.
func Call(dest string, path dbus.ObjectPath, method string, result any, args ...any) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return err
	}

	call := conn.Object(dest, path).Call(method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if result == nil {
		return nil
	}
	return call.Store(result)
}
