package svc

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/journal"
	"go.uber.org/zap/zapcore"
)

// journalCore is a zapcore.Core that hands each entry to sd_journal via
// journal.Send, used when -s/--output-systemd is given and the journal
// socket is reachable (cmn/log.New takes this in place of the console
// core).
type journalCore struct {
	zapcore.LevelEnabler
	fields []zapcore.Field
}

// NewJournalCore returns nil, false when the process is not running under
// systemd (journal.Enabled() is false) — the caller falls back to the
// console core in that case.
func NewJournalCore(enab zapcore.LevelEnabler) (zapcore.Core, bool) {
	if !journal.Enabled() {
		return nil, false
	}
	return &journalCore{LevelEnabler: enab}, true
}

func (c *journalCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &journalCore{LevelEnabler: c.LevelEnabler, fields: merged}
}

func (c *journalCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *journalCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	vars := make(map[string]string, len(enc.Fields)+1)
	vars["SYSLOG_IDENTIFIER"] = ent.LoggerName
	for k, v := range enc.Fields {
		vars["AGENT_"+k] = toString(v)
	}

	return journal.Send(ent.Message, journalPriority(ent.Level), vars)
}

func (c *journalCore) Sync() error { return nil }

func journalPriority(l zapcore.Level) journal.Priority {
	switch {
	case l >= zapcore.FatalLevel:
		return journal.PriCrit
	case l >= zapcore.ErrorLevel:
		return journal.PriErr
	case l >= zapcore.WarnLevel:
		return journal.PriWarning
	case l >= zapcore.InfoLevel:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return fmt.Sprint(v)
}
