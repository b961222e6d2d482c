package stream

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ChannelSession = "session:delta"
	ChannelPTY     = "pty:data"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config controls how a Registry batches and delivers stream output.
type Config struct {
	// Channel labels every emitted Event.
	Channel string `yaml:"channel" validate:"required"`
	// Interval is the throttle window of each stream.
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
	// MaxStreams caps concurrently open streams. Zero means unlimited.
	MaxStreams int `yaml:"max_streams" validate:"gte=0"`
	// SendTimeout bounds each Sink.Send call. Zero means no timeout.
	SendTimeout time.Duration `yaml:"send_timeout" validate:"gte=0"`
}

// DefaultConfig batches incremental response text.
func DefaultConfig() Config {
	return Config{
		Channel:     ChannelSession,
		Interval:    50 * time.Millisecond,
		SendTimeout: 5 * time.Second,
	}
}

// PTYConfig batches terminal output at roughly one frame.
func PTYConfig() Config {
	return Config{
		Channel:     ChannelPTY,
		Interval:    16 * time.Millisecond,
		SendTimeout: 5 * time.Second,
	}
}

// Validate checks the config against its declared tags.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := errors.AsType[validator.ValidationErrors](err)
	if !ok {
		return fmt.Errorf("stream config: %w", err)
	}

	parts := make([]string, len(verrs))
	for i, verr := range verrs {
		parts[i] = fmt.Sprintf("%s failed %q", strings.ToLower(verr.Field()), verr.Tag())
	}

	return fmt.Errorf("stream config: %s", strings.Join(parts, "; "))
}
