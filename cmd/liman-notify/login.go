package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"

	"github.com/nhle/liman-notify/internal/credential"
	"github.com/nhle/liman-notify/internal/liman"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/ui/loginform"
)

func runLogin(ctx context.Context, opts options) error {
	e, err := setup(opts, false)
	if err != nil {
		return err
	}

	prompter := loginform.Prompter{AskServer: e.cfg.Server.BaseURL == ""}
	creds, err := prompter.Login(ctx, loginform.Credentials{Server: e.cfg.Server.BaseURL})
	if err != nil {
		if errors.Is(err, loginform.ErrCancelled) {
			return nil
		}
		return err
	}

	if prompter.AskServer {
		e.cfg.Server.BaseURL = creds.Server
		if err := e.cfg.Validate(); err != nil {
			return err
		}
		if err := model.SaveConfig(e.cfgPath, e.cfg); err != nil {
			return err
		}
		e.client = e.newClient()
		e.log.WithField("server", creds.Server).Info("server saved to config")
	}

	token, err := e.client.Login(ctx, creds.Email, creds.Password)
	if errors.Is(err, liman.ErrPasswordChangeRequired) {
		color.Yellow("Your password must be changed before you can continue.")
		newPassword, perr := prompter.NewPassword(ctx)
		if perr != nil {
			if errors.Is(perr, loginform.ErrCancelled) {
				return nil
			}
			return perr
		}
		token, err = e.client.ChangePassword(ctx, creds.Email, creds.Password, newPassword)
	}
	if err != nil {
		return err
	}

	if err := credential.SaveSession(e.cfg.Host(), token); err != nil {
		return err
	}

	name := token.User.Name
	if name == "" {
		name = creds.Email
	}
	e.log.WithField("user_id", token.User.ID).Info("logged in")
	color.Green("Logged in to %s as %s", e.cfg.Host(), name)
	return nil
}

func runLogout(ctx context.Context, opts options) error {
	e, err := setup(opts, true)
	if err != nil {
		return err
	}

	_, client, err := e.session()
	if errors.Is(err, errNotLoggedIn) {
		fmt.Println("Not logged in.")
		e.forget()
		return nil
	}
	if err != nil {
		return err
	}

	if err := client.Logout(ctx); err != nil {
		e.log.WithError(err).Warn("server logout failed")
		color.Yellow("Server logout failed (%v); removing the local session anyway.", err)
	}
	e.forget()
	color.Green("Logged out of %s", e.cfg.Host())
	return nil
}
