package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/open-onethingcloud/tc-contracts/internal/config"
)

func TestInitLogging(t *testing.T) {
	t.Run("warnings reach the output by default", func(t *testing.T) {
		var buf bytes.Buffer
		l := initLogging(config.Config{}, &buf)
		l.Warningf("fixed seed in use")
		l.V(1).Infof("draw detail")

		if !strings.Contains(buf.String(), "fixed seed in use") {
			t.Errorf("expected the warning in the log output, got %q", buf.String())
		}
		if strings.Contains(buf.String(), "draw detail") {
			t.Errorf("expected level 1 logs to be off, got %q", buf.String())
		}
	})

	t.Run("verbose enables level 1", func(t *testing.T) {
		var buf bytes.Buffer
		l := initLogging(config.Config{LogVerbose: true}, &buf)
		l.V(1).Infof("draw detail")

		if !strings.Contains(buf.String(), "draw detail") {
			t.Errorf("expected level 1 logs with verbose on, got %q", buf.String())
		}
	})
}
