package install

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

// RAUC's well-known D-Bus name, object path and interface (spec §6
// "Executor IPC contract"). Using RAUC's actual documented names, rather
// than placeholders, keeps the wire contract faithful to a real executor.
const (
	busName   = "de.pengutronix.rauc"
	objPath   = dbus.ObjectPath("/")
	ifaceName = "de.pengutronix.rauc.Installer"
)

// terminalPeerLost is the synthetic exit status used when the executor's
// bus name disappears mid-install (spec §4.6: "non-zero, not 0").
const terminalPeerLost = 2

// Driver wraps a D-Bus connection to the RAUC executor.
type Driver struct {
	conn *dbus.Conn
}

// NewDriver connects to the system bus, where RAUC is reachable.
func NewDriver() (*Driver, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, errors.Wrap(err, "connecting to system bus")
	}
	return &Driver{conn: conn}, nil
}

// Close releases the underlying bus connection.
func (d *Driver) Close() error {
	return d.conn.Close()
}

// Run drives one install to completion, blocking the calling goroutine for
// its entire duration. The coordinator always calls Run synchronously, from
// the Download Worker's goroutine for a staged install or from the poll
// loop's goroutine for a streaming install, so the caller, not Run, owns
// whether the install blocks the poll loop.
func (d *Driver) Run(ctx *Context) {
	defer close(ctx.Progress)

	sigCh := make(chan *dbus.Signal, 32)
	d.conn.Signal(sigCh)
	defer d.conn.RemoveSignal(sigCh)

	matchPropsChanged := []dbus.MatchOption{
		dbus.WithMatchObjectPath(objPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	matchCompleted := []dbus.MatchOption{
		dbus.WithMatchObjectPath(objPath),
		dbus.WithMatchInterface(ifaceName),
		dbus.WithMatchMember("Completed"),
	}
	matchNameOwner := []dbus.MatchOption{
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, busName),
	}
	d.conn.AddMatchSignal(matchPropsChanged...)  //nolint:errcheck
	d.conn.AddMatchSignal(matchCompleted...)     //nolint:errcheck
	d.conn.AddMatchSignal(matchNameOwner...)     //nolint:errcheck
	defer d.conn.RemoveMatchSignal(matchPropsChanged...) //nolint:errcheck
	defer d.conn.RemoveMatchSignal(matchCompleted...)    //nolint:errcheck
	defer d.conn.RemoveMatchSignal(matchNameOwner...)    //nolint:errcheck

	obj := d.conn.Object(busName, objPath)
	args := d.installArgs(ctx)
	call := obj.Call(ifaceName+".InstallBundle", 0, ctx.BundlePath, args)
	if call.Err != nil {
		ctx.Terminal <- terminalPeerLost
		return
	}

	for sig := range sigCh {
		switch {
		case sig.Name == "org.freedesktop.DBus.Properties.PropertiesChanged":
			d.handlePropertiesChanged(ctx, sig)
		case sig.Name == ifaceName+".Completed":
			exit := 1
			if len(sig.Body) > 0 {
				if v, ok := sig.Body[0].(int32); ok {
					exit = int(v)
				}
			}
			ctx.Terminal <- exit
			return
		case sig.Name == "org.freedesktop.DBus.NameOwnerChanged":
			if len(sig.Body) == 3 {
				newOwner, _ := sig.Body[2].(string)
				if newOwner == "" {
					ctx.Terminal <- terminalPeerLost
					return
				}
			}
		}
	}
	// Signal channel closed without a terminal signal: treat as peer loss.
	ctx.Terminal <- terminalPeerLost
}

func (d *Driver) handlePropertiesChanged(ctx *Context, sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	if v, ok := changed["Operation"]; ok {
		if s, ok := v.Value().(string); ok {
			ctx.Progress <- s
		}
	}
	if v, ok := changed["Progress"]; ok {
		if tuple, ok := v.Value().([]interface{}); ok && len(tuple) == 3 {
			pct, _ := tuple[0].(int32)
			msg, _ := tuple[1].(string)
			ctx.Progress <- fmt.Sprintf("%3d%% %s", pct, msg)
		}
	}
	if v, ok := changed["LastError"]; ok {
		if s, ok := v.Value().(string); ok && s != "" {
			ctx.Progress <- "LastError: " + s
		}
	}
}

func (d *Driver) installArgs(ctx *Context) map[string]dbus.Variant {
	args := map[string]dbus.Variant{}
	if !ctx.IsStreaming() {
		return args
	}
	args["http-headers"] = dbus.MakeVariant([]string{ctx.StreamAuthHeader})
	args["tls-no-verify"] = dbus.MakeVariant(!ctx.StreamTLSVerify)
	if ctx.StreamTLSKey != "" {
		args["tls-key"] = dbus.MakeVariant(ctx.StreamTLSKey)
	}
	if ctx.StreamTLSCert != "" {
		args["tls-cert"] = dbus.MakeVariant(ctx.StreamTLSCert)
	}
	return args
}
