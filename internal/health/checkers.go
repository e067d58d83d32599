package health

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Static reports a fixed error, for conditions known at startup such as a
// missing API key. A nil err always passes.
func Static(name string, err error) Checker {
	return Checker{Name: name, Check: func(context.Context) error { return err }}
}

// Binary checks that an external program, such as the audio recorder or
// player, can be found on PATH.
func Binary(name, program string) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if program == "" {
				return errors.New("no command configured")
			}
			if _, err := exec.LookPath(program); err != nil {
				return fmt.Errorf("%s not found: %w", program, err)
			}
			return nil
		},
	}
}

// NonEmpty fails when count returns zero, e.g. an empty transit catalog.
func NonEmpty(name string, count func() int) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if count() == 0 {
				return errors.New("empty")
			}
			return nil
		},
	}
}
