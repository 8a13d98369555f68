package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sigqueue/api/clients/sigqueue"
)

type registerCommand struct {
	app     *app
	Account string `long:"account" required:"true" description:"account id"`
	PubKey  string `long:"pubkey" required:"true" description:"public key, base64 or hex"`
}

func (c *registerCommand) Execute([]string) error {
	client := sigqueue.NewClient(c.app.opts.API)
	if err := client.Register(c.app.ctx, c.Account, c.PubKey); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.app.out, "registered %s\n", c.Account)
	return err
}

type submitCommand struct {
	app         *app
	Account     string        `long:"account" required:"true" description:"account id"`
	Transaction string        `long:"tx" required:"true" description:"transaction id"`
	Payload     string        `long:"payload" required:"true" description:"signed payload"`
	Signature   string        `long:"signature" description:"detached signature; computed from --key when omitted"`
	Key         string        `long:"key" env:"SIGQUEUE_PRIVATE_KEY" description:"private key used to sign the payload"`
	Wait        time.Duration `long:"wait" description:"poll until the verdict is known, up to this long"`
}

func (c *submitCommand) Execute([]string) error {
	sig := c.Signature
	if sig == "" {
		if c.Key == "" {
			return errors.New("either --signature or --key is required")
		}
		var err error
		if sig, err = signPayload(c.Key, c.Payload); err != nil {
			return err
		}
	}
	client := sigqueue.NewClient(c.app.opts.API)
	if err := client.Submit(c.app.ctx, c.Account, c.Transaction, c.Payload, sig); err != nil {
		return err
	}
	if c.Wait <= 0 {
		_, err := fmt.Fprintf(c.app.out, "submitted %s\n", c.Transaction)
		return err
	}
	ctx, cancel := context.WithTimeout(c.app.ctx, c.Wait)
	defer cancel()
	status, err := client.WaitComplete(ctx, c.Account, c.Transaction, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", c.Transaction, err)
	}
	return writeJSON(c.app, status)
}

type statusCommand struct {
	app         *app
	Account     string `long:"account" required:"true" description:"account id"`
	Transaction string `long:"tx" required:"true" description:"transaction id"`
}

func (c *statusCommand) Execute([]string) error {
	status, err := sigqueue.NewClient(c.app.opts.API).Status(c.app.ctx, c.Account, c.Transaction)
	if err != nil {
		return err
	}
	return writeJSON(c.app, status)
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
