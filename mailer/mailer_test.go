package mailer

import (
	"bytes"
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"gamelend/apperr"
	"gamelend/config"
	"gamelend/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWithoutHostOnlyLogs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: zerolog.InfoLevel, Output: &buf})
	called := false
	m := NewSMTP(config.SMTPConfig{}, log).WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	})

	require.NoError(t, m.Send(context.Background(), Message{To: "ann@example.com", Subject: "hi"}))
	assert.False(t, called)
	assert.Contains(t, buf.String(), "mail.logged")
	assert.Contains(t, buf.String(), "ann@example.com")
}

func TestSendComposesMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := NewSMTP(config.SMTPConfig{Host: "smtp.test", Port: "2525", From: "desk@gamelend.test", AppName: "GameLend"}, logger.Nop()).
		WithSendFunc(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			assert.Nil(t, a, "no credentials configured")
			return nil
		})

	msg := OverdueReminder("GameLend", "Ann", "Hades", "PC", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 6, "12")
	msg.To = "ann@example.com"
	require.NoError(t, m.Send(context.Background(), msg))

	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, "desk@gamelend.test", gotFrom)
	assert.Equal(t, []string{"ann@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: GameLend: \"Hades\" is overdue\r\n")
	assert.Contains(t, string(gotMsg), "on 2026-03-01. It is now 6 day(s) overdue")
}

func TestSendFailureIsDependencyError(t *testing.T) {
	m := NewSMTP(config.SMTPConfig{Host: "smtp.test", Port: "25", From: "x@test"}, logger.Nop()).
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
			return errors.New("550 mailbox unavailable")
		})

	err := m.Send(context.Background(), Message{To: "ann@example.com"})
	assert.True(t, apperr.IsCode(err, apperr.CodeDependency))

	err = m.Send(context.Background(), Message{})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestSlowRelayReportsUnknownOutcome(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	m := NewSMTP(config.SMTPConfig{Host: "smtp.test", Port: "25", From: "x@test", Timeout: 20 * time.Millisecond}, logger.Nop()).
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
			<-release
			return nil
		})

	err := m.Send(context.Background(), Message{To: "ann@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryUnknown)
	assert.True(t, apperr.IsCode(err, apperr.CodeDependency))
}
