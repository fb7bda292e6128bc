package log

import "github.com/sirupsen/logrus"

// BadgerLogrusAdapter routes badger's internal logging through logrus so the
// status DB shares the application's log format and level filtering.
type BadgerLogrusAdapter struct {
	entry *logrus.Entry
}

// NewBadgerLogrusAdapter wraps a logrus entry in badger's Logger interface.
func NewBadgerLogrusAdapter(entry *logrus.Entry) *BadgerLogrusAdapter {
	return &BadgerLogrusAdapter{entry: entry}
}

func (l *BadgerLogrusAdapter) Errorf(f string, v ...interface{})   { l.entry.Errorf(f, v...) }
func (l *BadgerLogrusAdapter) Warningf(f string, v ...interface{}) { l.entry.Warningf(f, v...) }

// Infof demotes to debug: badger reports routine table and value-log
// activity at info, which would drown the scrape progress display.
func (l *BadgerLogrusAdapter) Infof(f string, v ...interface{})  { l.entry.Debugf(f, v...) }
func (l *BadgerLogrusAdapter) Debugf(f string, v ...interface{}) { l.entry.Debugf(f, v...) }
