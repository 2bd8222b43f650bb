package config

import (
	"errors"
	"fmt"
	"net/url"
)

type Config struct {
	// BridgeURI is the rosbridge websocket server.
	BridgeURI string

	InputTopic string

	OutputTopic     string
	OutputQueueSize int
	// Republish sends every converted frame to OutputTopic. Reloadable.
	Republish bool

	// WindowName is the title of the display window. Empty runs headless.
	WindowName string
	QuitKey    string
	MaxFPS     int

	// StatusLine is printed on every display iteration.
	StatusLine string

	// If set, the topic and frame time are drawn onto displayed frames.
	Overlay bool
}

func Default() *Config {
	return &Config{
		BridgeURI:       "ws://localhost:9090",
		InputTopic:      "/cameras/right_hand_camera/image",
		OutputTopic:     "/coordinates_from_opencv_hand",
		OutputQueueSize: 10,
		WindowName:      "Right Arm Camera",
		QuitKey:         "q",
		MaxFPS:          30,
		StatusLine:      "cameras/right_hand_camera/image",
	}
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.BridgeURI)
	if err != nil {
		return fmt.Errorf("invalid BridgeURI: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("BridgeURI must be ws:// or wss://, got %q", c.BridgeURI)
	}
	if c.InputTopic == "" {
		return errors.New("InputTopic is required")
	}
	if c.OutputTopic == "" {
		return errors.New("OutputTopic is required")
	}
	if c.OutputQueueSize < 0 {
		return fmt.Errorf("OutputQueueSize must not be negative, got %d", c.OutputQueueSize)
	}
	if len(c.QuitKey) != 1 {
		return fmt.Errorf("QuitKey must be a single character, got %q", c.QuitKey)
	}
	if c.MaxFPS <= 0 {
		return fmt.Errorf("MaxFPS must be positive, got %d", c.MaxFPS)
	}
	return nil
}
