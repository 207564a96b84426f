// Package install implements the Install Driver (spec §4.6): it talks to
// the RAUC executor over D-Bus and translates its property-change and
// signal events into progress lines and a terminal status.
package install

// Context is the per-install bundle location, optional streaming auth/TLS
// material, and the progress/terminal-status channels the Driver populates.
// Spec §9's "owner owns, callback holds a non-owning reference" cyclic-
// reference note is satisfied here by Context owning both channels and the
// Driver only ever sending on them, never storing a Context of its own.
type Context struct {
	// BundlePath is a local path (staged install) or a remote URL
	// (streaming install).
	BundlePath string

	// Streaming-only fields; zero value for a staged (local-file) install.
	StreamAuthHeader string
	StreamTLSVerify  bool
	StreamTLSKey     string
	StreamTLSCert    string

	// Progress is closed by the driver when no more progress lines will
	// arrive; Terminal receives exactly one value (the exit code, 0 =
	// success) before Progress closes.
	Progress chan string
	Terminal chan int
}

// NewContext allocates a Context with ready-to-use channels.
func NewContext(bundlePath string) *Context {
	return &Context{
		BundlePath: bundlePath,
		Progress:   make(chan string, 16),
		Terminal:   make(chan int, 1),
	}
}

// IsStreaming reports whether this install fetches the bundle directly
// (streaming mode) rather than reading a pre-downloaded local file.
func (c *Context) IsStreaming() bool {
	return c.StreamAuthHeader != "" || c.StreamTLSKey != "" || c.StreamTLSCert != ""
}
