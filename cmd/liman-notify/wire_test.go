package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/notify"
)

func TestFinish_QuietEndings(t *testing.T) {
	e := &env{log: logging.Discard()}

	assert.NoError(t, e.finish(&pipeline{}, nil))
	assert.NoError(t, e.finish(&pipeline{}, context.Canceled))
	assert.NoError(t, e.finish(&pipeline{}, fmt.Errorf("run: %w", context.Canceled)))
}

func TestFinish_ReplacedSessionIsKept(t *testing.T) {
	e := &env{log: logging.Discard()}

	assert.NoError(t, e.finish(&pipeline{}, notify.ErrReplaced))
}

func TestFinish_PassesOtherErrors(t *testing.T) {
	e := &env{log: logging.Discard()}
	boom := errors.New("boom")

	assert.ErrorIs(t, e.finish(&pipeline{}, boom), boom)
}

func TestRetention(t *testing.T) {
	cfg := &model.AppConfig{Journal: model.JournalConfig{RetentionDays: 2}}
	assert.Equal(t, 48*time.Hour, retention(cfg))

	cfg.Journal.RetentionDays = 0
	assert.Zero(t, retention(cfg))
}

func TestCommandTable(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		assert.False(t, seen[c.name], "duplicate command %s", c.name)
		seen[c.name] = true
		assert.NotNil(t, c.run)
	}
	assert.True(t, seen["watch"])
}
