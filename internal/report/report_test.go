package report

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerLevelsAndFormat(t *testing.T) {
	l := NewLogger(true, false)
	if l.GetLevel() != logrus.DebugLevel {
		t.Errorf("verbose logger level = %v, want Debug", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("expected TextFormatter, got %T", l.Formatter)
	}

	l = NewLogger(false, true)
	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("non-verbose logger level = %v, want Info", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("expected JSONFormatter, got %T", l.Formatter)
	}
}
