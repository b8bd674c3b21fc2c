package logger

import (
	"bytes"
	"testing"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
)

func TestLevelOption(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"", false, true, true},
		{"WARN", false, false, true},
		{"error", false, false, false},
		{"verbose", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := level.NewFilter(kitlog.NewLogfmtLogger(&buf), levelOption(tt.level))

			level.Debug(logger).Log("msg", "d")
			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("msg=d")))
			level.Info(logger).Log("msg", "i")
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("msg=i")))
			level.Warn(logger).Log("msg", "w")
			assert.Equal(t, tt.wantWarn, bytes.Contains(buf.Bytes(), []byte("msg=w")))
		})
	}
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New(Config{Service: "mailbeacon", Version: "test", Format: "json"}))
}
