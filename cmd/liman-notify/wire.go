package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/liman-notify/internal/alert"
	"github.com/nhle/liman-notify/internal/credential"
	"github.com/nhle/liman-notify/internal/liman"
	"github.com/nhle/liman-notify/internal/logging"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/notify"
	"github.com/nhle/liman-notify/internal/pusher"
	"github.com/nhle/liman-notify/internal/store"
)

// errNotLoggedIn is returned when no usable session is stored.
var errNotLoggedIn = errors.New("not logged in, run: liman-notify login")

// env carries what every command needs.
type env struct {
	cfgPath string
	cfg     *model.AppConfig
	log     *logrus.Logger
	client  *liman.Client
}

// setup loads configuration and builds the logger and an unauthenticated
// REST client. With validate false a missing server URL is tolerated.
func setup(opts options, validate bool) (*env, error) {
	path := opts.configPath
	if path == "" {
		path = model.DefaultConfigPath()
	}

	var (
		cfg *model.AppConfig
		err error
	)
	if validate {
		cfg, err = model.LoadConfig(path)
	} else {
		cfg, err = model.ReadConfig(path)
	}
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Options{
		File:    cfg.Log.File,
		Level:   cfg.Log.Level,
		Verbose: opts.verbose,
	})
	if err != nil {
		return nil, err
	}

	e := &env{cfgPath: path, cfg: cfg, log: log}
	e.client = e.newClient()
	return e, nil
}

func (e *env) newClient() *liman.Client {
	return liman.NewClient(liman.Options{
		BaseURL:            e.cfg.Server.BaseURL,
		APIPrefix:          e.cfg.Server.APIPrefix,
		AuthPrefix:         e.cfg.Server.AuthPrefix,
		ChannelAuthPath:    e.cfg.Push.AuthPath,
		Timeout:            time.Duration(e.cfg.Server.TimeoutSec) * time.Second,
		InsecureSkipVerify: e.cfg.Server.InsecureSkipVerify,
		Logger:             e.log,
	})
}

// session loads the stored token and returns it with an authenticated client.
func (e *env) session() (model.AccessToken, *liman.Client, error) {
	token, err := credential.LoadSession(e.cfg.Host())
	if err != nil {
		if errors.Is(err, credential.ErrNoSession) {
			return model.AccessToken{}, nil, errNotLoggedIn
		}
		return model.AccessToken{}, nil, err
	}

	if exp, ok := notify.TokenExpiry(token); ok && time.Now().After(exp) {
		if err := credential.DeleteSession(e.cfg.Host()); err != nil {
			e.log.WithError(err).Warn("removing expired session")
		}
		return model.AccessToken{}, nil, fmt.Errorf("session expired: %w", errNotLoggedIn)
	}

	return token, e.client.WithToken(token.AccessToken), nil
}

// storedToken reads the token currently in the keyring for this server.
func (e *env) storedToken() (string, error) {
	token, err := credential.LoadSession(e.cfg.Host())
	if errors.Is(err, credential.ErrNoSession) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// forget removes the stored session after the server rejected it.
func (e *env) forget() {
	if err := credential.DeleteSession(e.cfg.Host()); err != nil {
		e.log.WithError(err).Warn("removing stored session")
	}
}

// checkAuth maps a rejected token to errNotLoggedIn and forgets it.
func (e *env) checkAuth(err error) error {
	if liman.IsAuthError(err) {
		e.forget()
		return fmt.Errorf("%v: %w", err, errNotLoggedIn)
	}
	return err
}

func (e *env) openJournal() (*store.SQLiteStore, error) {
	j, err := store.NewSQLiteStore(e.cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return j, nil
}

func (e *env) alerter() (*alert.Dispatcher, func()) {
	var desktop alert.Desktop
	cleanup := func() {}
	if e.cfg.Alerts.Desktop {
		d := alert.NewDBusNotifier("Liman")
		desktop = d
		cleanup = func() { _ = d.Close() }
	}

	var sound alert.Sound
	if e.cfg.Alerts.Sound {
		sound = alert.NewCommandPlayer(e.cfg.Alerts.Player, e.cfg.Alerts.SoundFile)
	}

	d := alert.NewDispatcher(desktop, sound, e.log)
	return d, func() {
		d.Close()
		cleanup()
	}
}

func (e *env) transport(client *liman.Client) (notify.Transport, error) {
	pushURL, err := e.cfg.PushURL()
	if err != nil {
		return nil, err
	}
	pc := pusher.New(pusher.Config{
		URL:         pushURL,
		Authorizer:  client,
		IsPermanent: liman.IsAuthError,
		Logger:      e.log,
	})
	return notify.PusherTransport{Client: pc}, nil
}

// pipeline builds the Center for a stored session.
type pipeline struct {
	session *notify.Session
	client  *liman.Client
	center  *notify.Center
	journal *store.SQLiteStore
	close   func()
}

func (e *env) pipeline(onDelivery func(model.Notification, model.Source)) (*pipeline, error) {
	token, client, err := e.session()
	if err != nil {
		return nil, err
	}

	transport, err := e.transport(client)
	if err != nil {
		return nil, err
	}

	journal, err := e.openJournal()
	if err != nil {
		return nil, err
	}

	alerter, closeAlerts := e.alerter()
	sess := notify.NewSession(token)

	center := notify.NewCenter(notify.Options{
		Session:   sess,
		API:       client,
		Transport: transport,
		Alerter:   alerter,
		Journal:   journal,
		Seen: notify.SeenOptions{
			Delay:      e.cfg.Seen.Delay(),
			RatePerSec: e.cfg.Seen.RatePerSec,
			Burst:      e.cfg.Seen.Burst,
			Timeout:    time.Duration(e.cfg.Server.TimeoutSec) * time.Second,
		},
		OnDelivery: onDelivery,
		Logger:     e.log,
	})

	return &pipeline{
		session: sess,
		client:  client,
		center:  center,
		journal: journal,
		close: func() {
			closeAlerts()
			_ = journal.Close()
		},
	}, nil
}

// finish handles the reason a watched session ended.
func (e *env) finish(p *pipeline, reason error) error {
	switch {
	case reason == nil, errors.Is(reason, context.Canceled):
		return nil

	case errors.Is(reason, notify.ErrLoggedOut):
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.client.Logout(ctx); err != nil {
			e.log.WithError(err).Warn("server logout failed")
		}
		e.forget()
		return nil

	case errors.Is(reason, notify.ErrReplaced):
		e.log.Info("session replaced, watcher stopped")
		fmt.Println("The stored session changed; run liman-notify again to watch with it.")
		return nil

	case errors.Is(reason, notify.ErrUnauthorized), errors.Is(reason, notify.ErrExpired):
		e.forget()
		return fmt.Errorf("%v: %w", reason, errNotLoggedIn)

	default:
		return reason
	}
}
