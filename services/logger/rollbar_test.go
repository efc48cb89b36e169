package logsvc

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/user"
)

func newTestLogger() (*RollbarLogger, *bytes.Buffer) {
	conf := core.NewTestConfig()
	conf.Log.Level = "debug"
	conf.Log.Format = "json"

	sink := NewSink(conf)
	buf := new(bytes.Buffer)
	sink.SetOutput(buf)
	return NewRollbarLogger(sink, conf), buf
}

func TestRollbarLogger_Fields(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Warn("sync queue is full", map[string]interface{}{"techStackId": "t1"}, user.User{ID: "u1", Name: "Ada"})
	out := buf.String()
	assert.Contains(t, out, `"msg":"sync queue is full"`)
	assert.Contains(t, out, `"level":"warning"`)
	assert.Contains(t, out, `"techStackId":"t1"`)
	assert.Contains(t, out, `"userId":"u1"`)

	buf.Reset()
	logger.Error("publishing roadmap", errors.New("boom"))
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestNewSink_Level(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Log.Level = "not-a-level"
	assert.Equal(t, logrus.InfoLevel, NewSink(conf).GetLevel())

	conf.Log.Level = "error"
	sink := NewSink(conf)
	buf := new(bytes.Buffer)
	sink.SetOutput(buf)
	NewRollbarLogger(sink, conf).Info("hidden")
	assert.Empty(t, buf.String())
}
