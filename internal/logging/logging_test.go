package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func capture(l Logger) (Logger, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	l.Out, l.Err = &out, &errOut
	return l, &out, &errOut
}

func TestLogger_Levels(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name    string
		logger  Logger
		wantOut []string
		wantErr []string
	}{
		{"quiet", Logger{}, nil, []string{"[warn] always"}},
		{"verbose", Logger{Verbose: true}, []string{"[info] info"}, []string{"[warn] warn", "[warn] always"}},
		{"debug", Logger{Debug: true}, []string{"[info] info", "[debug] debug"}, []string{"[warn] warn", "[error] error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, out, errOut := capture(tt.logger)
			l.Infof("info")
			l.Debugf("debug")
			l.Warnf("warn")
			l.WarnfAlways("always")
			l.Errorf("error")

			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("Expected stdout to contain %q, got %q", want, out.String())
				}
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(errOut.String(), want) {
					t.Errorf("Expected stderr to contain %q, got %q", want, errOut.String())
				}
			}
			if len(tt.wantOut) == 0 && out.Len() != 0 {
				t.Errorf("Expected no stdout, got %q", out.String())
			}
		})
	}
}

func TestErrorfAndReturn(t *testing.T) {
	l, _, _ := capture(Logger{})
	err := l.ErrorfAndReturn("failed to open %s", "room")
	if err == nil || err.Error() != "failed to open room" {
		t.Errorf("Unexpected error %v", err)
	}
}
