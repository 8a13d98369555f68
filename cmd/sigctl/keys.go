package main

import (
	"errors"
	"fmt"

	"sigqueue/pkg/sigkit"
)

type keygenCommand struct {
	app *app
}

func (c *keygenCommand) Execute([]string) error {
	pub, priv, err := sigkit.GenerateKey(nil)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.app.out, "public:  %s\nprivate: %s\n", sigkit.Encode(pub), sigkit.Encode(priv.Seed()))
	return err
}

type signCommand struct {
	app     *app
	Key     string `long:"key" env:"SIGQUEUE_PRIVATE_KEY" required:"true" description:"private key or seed, base64 or hex"`
	Payload string `long:"payload" required:"true" description:"payload to sign"`
}

func (c *signCommand) Execute([]string) error {
	sig, err := signPayload(c.Key, c.Payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.app.out, sig)
	return err
}

func signPayload(key, payload string) (string, error) {
	if key == "" {
		return "", errors.New("private key is required")
	}
	priv, err := sigkit.ParsePrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	return sigkit.Sign(priv, []byte(payload)), nil
}
