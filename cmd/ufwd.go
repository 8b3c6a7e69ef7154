package main

import (
	"os"

	"github.com/mazdakn/ufwd/pkg/afpacket"
	"github.com/mazdakn/ufwd/pkg/config"
	"github.com/mazdakn/ufwd/pkg/engine"
	"github.com/mazdakn/ufwd/pkg/memport"
	"github.com/mazdakn/ufwd/pkg/metrics"
	"github.com/mazdakn/ufwd/pkg/port"
	"github.com/sirupsen/logrus"
)

const (
	version = "v0.1.0"
)

func main() {
	logrus.Infof("Running uFwd %v", version)
	conf, err := config.FromCmdline()
	if err != nil {
		logrus.WithError(err).Errorf("Failed to parse config file")
		os.Exit(1)
	}

	var driver port.Driver
	switch conf.Driver {
	case config.DriverAFPacket:
		driver = afpacket.NewDriver(conf.Interfaces)
	default:
		driver = memport.NewLoopDriver()
	}

	engineMgr := engine.New(conf, driver)

	if conf.MetricsAddress != "" {
		go func() {
			err := metrics.Serve(conf.MetricsAddress, engineMgr)
			if err != nil {
				logrus.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	err = engineMgr.Run()
	if err != nil {
		logrus.WithError(err).Error("Failure in running the engine")
		os.Exit(1)
	}
}
