// Package main contains the video/IMU pose fusion daemon. It subscribes to
// orientation and pose report topics on an MQTT broker, runs the fusion
// pipeline over them, and publishes fused poses back to the broker.
package main

import (
	"context"
	"encoding/json"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/poselink/videoimufusion/fusion"
	"github.com/poselink/videoimufusion/transport"
)

var logger = golog.NewDevelopmentLogger("videoimufusion")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"config,usage=path to a JSON config file"`
	Broker     string `flag:"broker,usage=MQTT broker address (overrides the config file)"`
}

type daemonConfig struct {
	Broker   string           `json:"broker"`
	ClientID string           `json:"client_id"`
	Topics   transport.Topics `json:"topics"`
	Fusion   fusion.Config    `json:"fusion"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Broker:   "tcp://127.0.0.1:1883",
		ClientID: "videoimufusion",
		Topics:   transport.DefaultTopics(),
		Fusion:   fusion.DefaultConfig(),
	}
}

func readConfig(path string) (daemonConfig, error) {
	cfg := defaultDaemonConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %q", path)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %q", path)
	}
	return cfg, nil
}

func (c daemonConfig) validate() error {
	if c.Broker == "" {
		return errors.New("broker address is required")
	}
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if err := c.Topics.Validate(); err != nil {
		return err
	}
	return c.Fusion.Validate()
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	cfg, err := readConfig(argsParsed.ConfigFile)
	if err != nil {
		return err
	}
	if argsParsed.Broker != "" {
		cfg.Broker = argsParsed.Broker
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	return runFusion(ctx, cfg, logger)
}

func runFusion(ctx context.Context, cfg daemonConfig, logger golog.Logger) (err error) {
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "connecting to MQTT broker %q", cfg.Broker)
	}
	defer client.Disconnect(250)

	source, err := transport.NewSource(client, cfg.Topics, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, source.Close())
	}()

	sink, err := transport.NewSink(client, cfg.Topics)
	if err != nil {
		return err
	}

	pipeline, err := fusion.New(source, source, sink, cfg.Fusion, logger)
	if err != nil {
		return err
	}
	logger.Infow("fusion pipeline started", "broker", cfg.Broker, "state", pipeline.State().String())

	<-ctx.Done()
	logger.Infow("shutting down", "state", pipeline.State().String())
	return nil
}
