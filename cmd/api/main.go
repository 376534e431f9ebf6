package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/siku2/acthor2mqtt/internal/actor"
	"github.com/siku2/acthor2mqtt/internal/config"
	"github.com/siku2/acthor2mqtt/internal/server"
	"github.com/siku2/acthor2mqtt/internal/util/actorutil"
	"github.com/siku2/acthor2mqtt/pkg/acthor_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, deviceActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => ACTHOR2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("ACTHOR2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("acthor2mqtt")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.ActhorModbusTcp.Host == "" {
		return nil, errors.New("config param acthor_modbus_tcp.host is required")
	}
	if cfg.ActhorModbusTcp.DeviceId < 1 || cfg.ActhorModbusTcp.DeviceId > 247 {
		return nil, errors.New("config param acthor_modbus_tcp.device_id should be between 1 and 247")
	}
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}

	return &cfg, nil
}

func deviceActorProvider(cfg *config.Config, logger *zap.Logger) actor.DeviceActorProvider {

	deviceCfg := acthor_modbus.DeviceConfig{
		Session: acthor_modbus.SessionConfig{
			RequestTimeout:    time.Duration(cfg.ActhorModbusTcp.RequestTimeoutMillis) * time.Millisecond,
			DegradedThreshold: int(cfg.ActhorModbusTcp.DegradedThreshold),
		},
		Poller: acthor_modbus.PollerConfig{
			MaxRetries:   int(cfg.ActhorModbusTcp.PollRetries),
			RetryBackoff: time.Duration(cfg.ActhorModbusTcp.RetryBackoffMillis) * time.Millisecond,
		},
	}
	modbusLogger := modbusLogger(cfg.LogLevel)

	return func() *actor.DeviceActor {
		return actor.NewDeviceActor(cfg, func() (*acthor_modbus.Device, error) {
			return acthor_modbus.CreateActhorModbusDevice(cfg.ActhorModbusTcp.Host, cfg.ActhorModbusTcp.Port,
				uint8(cfg.ActhorModbusTcp.DeviceId), deviceCfg, modbusLogger, nil)
		}, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *actor.MQTTActor {
		return actor.NewMQTTActor(cfg, es, logger)
	}
}

// modbusLogger bridges the configured zap level to the logrus logger the
// Modbus package expects.
func modbusLogger(level zapcore.Level) *logrus.Logger {
	l := logrus.New()
	switch level {
	case zap.DebugLevel:
		l.SetLevel(logrus.DebugLevel)
	case zap.InfoLevel:
		l.SetLevel(logrus.InfoLevel)
	case zap.WarnLevel:
		l.SetLevel(logrus.WarnLevel)
	default:
		l.SetLevel(logrus.ErrorLevel)
	}
	return l
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "acthor2mqtt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("acthor_modbus_tcp.port", 502)
	viper.SetDefault("acthor_modbus_tcp.device_id", 1)
	viper.SetDefault("power.busy_retry_millis", 100)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
